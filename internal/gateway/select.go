package gateway

import (
	"fmt"
	"log"
	"strings"

	"casa/internal/config"
)

// FromEnv builds the configured gateway. GATEWAY_PROVIDERS is an ordered
// fallback chain ("stripe,mock"): the first adapter that can be constructed
// wins, later entries only apply when an earlier one is misconfigured.
// Business logic never branches on the processor name; it only sees the
// Gateway interface.
func FromEnv() (Gateway, error) {
	chain := strings.Split(config.GetEnv("GATEWAY_PROVIDERS", "stripe,mock"), ",")

	var lastErr error
	for _, name := range chain {
		switch strings.TrimSpace(name) {
		case "stripe":
			gw, err := NewStripeGateway(config.GetEnv("STRIPE_SECRET_KEY", ""))
			if err != nil {
				lastErr = err
				log.Printf("gateway: stripe unavailable, trying next in chain: %v", err)
				continue
			}
			return gw, nil
		case "mock":
			if config.IsProduction() {
				lastErr = fmt.Errorf("mock gateway not allowed in production")
				continue
			}
			log.Println("gateway: using in-memory mock processor")
			return NewMockGateway(), nil
		case "":
			continue
		default:
			lastErr = fmt.Errorf("unknown gateway provider %q", name)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no gateway providers configured")
	}
	return nil, lastErr
}
