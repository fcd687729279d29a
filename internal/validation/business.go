package validation

import (
	"strconv"

	"casa/internal/models"
)

// LineItems validates the billed rows on an estimate or invoice.
func (v *Validator) LineItems(field string, items models.LineItems) {
	if len(items) == 0 {
		v.AddError(field, "must contain at least one line item")
		return
	}
	for i, item := range items {
		v.Required(itemField(field, i, "description"), item.Description)
		v.MaxLength(itemField(field, i, "description"), item.Description, MaxDescriptionLength)
		v.CentsRange(itemField(field, i, "total_cents"), item.TotalCents, MinLineItemCents, MaxLineItemCents)
	}
}

// DisputeReason validates the customer's stated reason for contesting an
// invoice.
func (v *Validator) DisputeReason(field, reason string) {
	v.Required(field, reason)
	v.OneOf(field, reason,
		models.DisputeReasonWorkIncomplete,
		models.DisputeReasonQuality,
		models.DisputeReasonOvercharge,
		models.DisputeReasonNotPerformed,
		models.DisputeReasonOther,
	)
}

// Resolution validates an admin's dispute decision.
func (v *Validator) Resolution(field, resolution string) {
	v.OneOf(field, resolution,
		models.ResolutionCustomerFavor,
		models.ResolutionProviderFavor,
		models.ResolutionSplit,
	)
}

func itemField(field string, i int, sub string) string {
	return field + "[" + strconv.Itoa(i) + "]." + sub
}
