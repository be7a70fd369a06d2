package invoice

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// tripSheetKeywords mark ride-hailing itinerary documents
var tripSheetKeywords = []string{"行程单", "TRIP TABLE"}

var (
	invoiceTypePattern   = regexp.MustCompile(`(普通|专用)发票`)
	// \x{3000} and \x{00a0} are the ideographic and no-break spaces of CJK text layers
	amountPattern        = regexp.MustCompile(`小写[）)\s\x{3000}\x{00a0}]*[¥￥]?([0-9]+(?:\.[0-9]{1,2})?)`)
	invoiceNumberPattern = regexp.MustCompile(`发票号码[:：\s\x{3000}\x{00a0}]*([0-9]{8,20})`)
	categoryStarPattern  = regexp.MustCompile(`\*([^*]{1,30})\*`)

	// The doubled backslashes are literal: the class excludes '\' and 's', not whitespace.
	categoryColumnPattern = regexp.MustCompile(`(?:项目名称|货物或应税劳务、服务名称)[\\s:：]*([^\\s]+)`)

	cjkPattern   = regexp.MustCompile(`[\x{4e00}-\x{9fff}]`)
	digitPattern = regexp.MustCompile(`\d`)
)

const (
	maxCategoryLen         = 30
	maxFileNameCategoryLen = 15
)

// columnHeaderTokens reject a column-label capture that ran into the table header
var columnHeaderTokens = []string{"规格", "型号", "单位", "数量", "单价", "金额", "税率", "税额"}

// fileNameStopTokens reject file name segments that are not categories
var fileNameStopTokens = []string{"票", "元", "规格", "型号", "pdf"}

// IsTripSheetText reports whether the text belongs to an itinerary document
func IsTripSheetText(text string) bool {
	for _, keyword := range tripSheetKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// ExtractText runs the rule-based pass over the text layer of a document.
// fileName is only used as the last category source.
func ExtractText(text, fileName string) FieldSet {
	if IsTripSheetText(text) {
		return TripSheet()
	}

	var fields FieldSet
	if m := invoiceTypePattern.FindStringSubmatch(text); m != nil {
		fields.InvoiceType, _ = NormalizeType(m[1])
	}
	if m := invoiceNumberPattern.FindStringSubmatch(text); m != nil {
		fields.InvoiceNumber = m[1]
	}
	if m := amountPattern.FindStringSubmatch(text); m != nil {
		fields.Amount = m[1]
	}
	fields.Category = resolveCategory(text, fileName)
	return fields
}

// NormalizeType maps a free-text invoice classification onto the known
// types. ok is false when neither keyword matched and the input is passed through.
func NormalizeType(s string) (t InvoiceType, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case lower == "":
		return "", true
	case strings.Contains(lower, "专用"):
		return Special, true
	case strings.Contains(lower, "普通"):
		return Ordinary, true
	default:
		return InvoiceType(strings.TrimSpace(s)), false
	}
}

// resolveCategory tries the asterisk span, then the column label, then the file name
func resolveCategory(text, fileName string) string {
	if c := categoryFromStars(text); c != "" {
		return c
	}
	if c := categoryFromColumn(text); c != "" {
		return c
	}
	return CategoryFromFileName(fileName)
}

func categoryFromStars(text string) string {
	m := categoryStarPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	c := strings.TrimSpace(m[1])
	if n := utf8.RuneCountInString(c); n == 0 || n > maxCategoryLen {
		return ""
	}
	return c
}

func categoryFromColumn(text string) string {
	m := categoryColumnPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	c := strings.TrimSpace(m[1])
	if n := utf8.RuneCountInString(c); n == 0 || n > maxCategoryLen {
		return ""
	}
	if containsAny(c, columnHeaderTokens) {
		return ""
	}
	return c
}

// CategoryFromFileName guesses a category from names like "8_信息技术服务_4200元.pdf".
// The leading segment is the ordinal and is never used.
func CategoryFromFileName(fileName string) string {
	if fileName == "" {
		return ""
	}
	base := filepath.Base(fileName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, "_")
	for _, p := range parts[1:] {
		trimmed := strings.TrimSpace(p)
		if !cjkPattern.MatchString(p) || digitPattern.MatchString(p) {
			continue
		}
		if n := utf8.RuneCountInString(trimmed); n == 0 || n > maxFileNameCategoryLen {
			continue
		}
		if containsAny(p, fileNameStopTokens) {
			continue
		}
		return trimmed
	}
	return ""
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}
