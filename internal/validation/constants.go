package validation

const (
	// Amount limits, in cents
	MinLineItemCents = 1
	MaxLineItemCents = 100_000_00

	// String lengths
	MaxDescriptionLength = 500
	MaxNotesLength       = 2000
)
