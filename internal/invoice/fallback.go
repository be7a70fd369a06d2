package invoice

// NeedsFallback decides whether model-based extraction should run for a
// rule-based result. Trip sheets never fall back.
func NeedsFallback(f FieldSet) bool {
	if f.IsTripSheet {
		return false
	}
	return f.AllMissing() || f.CriticalMissing() || f.CoreMissing()
}

// Merge fills the gaps of base with the non-empty values of extra. A known
// base value is never replaced.
func Merge(base, extra FieldSet) FieldSet {
	if base.IsTripSheet {
		return base
	}
	merged := base
	if merged.InvoiceType == "" && extra.InvoiceType != "" {
		merged.InvoiceType = extra.InvoiceType
	}
	if merged.Amount == "" && extra.Amount != "" {
		merged.Amount = extra.Amount
	}
	if merged.Category == "" && extra.Category != "" {
		merged.Category = extra.Category
	}
	if merged.InvoiceNumber == "" && extra.InvoiceNumber != "" {
		merged.InvoiceNumber = extra.InvoiceNumber
	}
	return merged
}
