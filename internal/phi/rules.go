package phi

import "regexp"

// Category classifies the kind of protected health information a rule detects.
type Category string

// Supported PHI categories. The order they are applied in is fixed by
// defaultRules, not by these declarations.
const (
	CategoryName    Category = "NAME"
	CategoryMRN     Category = "MRN"
	CategoryDOB     Category = "DOB"
	CategorySSN     Category = "SSN"
	CategoryPhone   Category = "PHONE"
	CategoryEmail   Category = "EMAIL"
	CategoryAddress Category = "ADDRESS"
	CategoryRoom    Category = "ROOM"
)

// Rule pairs a compiled span matcher with its PHI category. When group is
// non-zero only that submatch is replaced, so label text such as "MRN:" or
// "DOB:" survives de-identification and the surrounding sentence stays
// readable for the language model.
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
	group    int
}

// defaultRules is the static, process-wide rule catalog. Rules run in this
// exact order on every call: categories matched earlier leave placeholders
// behind that later patterns cannot re-match (identifier classes deliberately
// exclude '_' and '[').
var defaultRules = []Rule{
	// Honorific followed by one or two capitalized words.
	{CategoryName, regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`), 0},

	// Labelled medical record number. The identifier must contain a digit so
	// prose after a bare label ("medical record shows...") is left alone.
	{CategoryMRN, regexp.MustCompile(`(?i)\b(?:MRN|Medical Record(?:\s*(?:Number|No\.?|#))?|Patient ID)\s*[:#]?\s*([A-Za-z]*\d[A-Za-z0-9-]*)`), 1},

	// Labelled date of birth, slash- or dash-delimited.
	{CategoryDOB, regexp.MustCompile(`(?i)\b(?:DOB|Date of Birth|Born)\s*:?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`), 1},
	// Bare date immediately followed by an age marker.
	{CategoryDOB, regexp.MustCompile(`(?i)\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\s*,?\s*(?:years?\s+old|y\.?o\.?)`), 1},

	{CategorySSN, regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`), 0},

	// North-American phone, optional country code and punctuation.
	{CategoryPhone, regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), 0},

	{CategoryEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), 0},

	// House number, street name, street-type word.
	{CategoryAddress, regexp.MustCompile(`(?i)\b\d+\s+(?:[A-Za-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Lane|Ln|Way|Court|Ct)\b`), 0},

	// Labelled room or bed identifier; same digit requirement as MRN.
	{CategoryRoom, regexp.MustCompile(`(?i)\b(?:Room|Rm\.?|Bed)\s*[:#]?\s*([A-Za-z]?\d[A-Za-z0-9-]*)`), 1},
}

// Rules returns the active rule catalog. The slice and the compiled patterns
// are read-only shared state; callers must not mutate them.
func Rules() []Rule {
	return defaultRules
}
