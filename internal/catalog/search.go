package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Search returns the products whose "title description" contains text and whose
// category contains category. Matching ignores case and diacritics; empty filters match all.
func (c *Catalog) Search(text, category string) []Product {
	wantText := Normalize(text)
	wantCategory := Normalize(category)

	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if !strings.Contains(Normalize(p.Title+" "+p.Description), wantText) {
			continue
		}
		if wantCategory != "" && !strings.Contains(Normalize(p.Category), wantCategory) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Normalize decomposes s, strips combining marks and lower-cases the result,
// so "Inalámbricos" and "INALAMBRICOS" compare equal.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Lower(language.Und))
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}
