package phi

import "strings"

// Reidentify restores original spans by replacing every literal occurrence
// of each token's placeholder. Placeholders are replaced as plain strings,
// never compiled into a pattern, so no escaping of programmatically built
// text is involved.
//
// Substitution order cannot matter: the [CATEGORY_N] format guarantees no
// placeholder is a substring of another. A placeholder the transform step
// dropped or mangled is simply never restored; that is accepted lossy
// behavior, not an error.
func Reidentify(text string, tokens []Token) string {
	for _, t := range tokens {
		text = strings.ReplaceAll(text, t.Placeholder, t.Original)
	}
	return text
}

// MissingPlaceholders counts tokens whose placeholder no longer occurs in
// text. Callers report this as a gap count; the originals involved stay
// unlogged.
func MissingPlaceholders(text string, tokens []Token) int {
	missing := 0
	for _, t := range tokens {
		if !strings.Contains(text, t.Placeholder) {
			missing++
		}
	}
	return missing
}
