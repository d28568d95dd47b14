package tax

import "strings"

// BillingMode says whether an entered unit price already contains tax.
type BillingMode string

const (
	BillingInclusiveGST BillingMode = "INCLUSIVE_GST"
	BillingExclusiveGST BillingMode = "EXCLUSIVE_GST"
	BillingNoGST        BillingMode = "NO_GST"
)

// NormalizeBillingMode maps the loose strings collaborators send (legacy
// configs used free-form values like "incl"/"Exclusive of GST") onto the
// closed enum. Unknown or empty input falls back to the supplied default so
// a typo can never silently change billing semantics inside the engine.
func NormalizeBillingMode(raw string, fallback BillingMode) BillingMode {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "INCLUSIVE_GST", "INCLUSIVE", "INCL", "INCLUSIVE OF GST":
		return BillingInclusiveGST
	case "EXCLUSIVE_GST", "EXCLUSIVE", "EXCL", "EXCLUSIVE OF GST":
		return BillingExclusiveGST
	case "NO_GST", "NONE", "NO GST", "EXEMPT":
		return BillingNoGST
	default:
		return fallback
	}
}

// Valid reports whether the mode is one of the closed enum values.
func (m BillingMode) Valid() bool {
	switch m {
	case BillingInclusiveGST, BillingExclusiveGST, BillingNoGST:
		return true
	}
	return false
}
