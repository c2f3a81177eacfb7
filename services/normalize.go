package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRE = regexp.MustCompile(`[\s\x{00A0}]+`)

// CollapseWhitespace ersetzt Folgen von Leerraum durch ein einzelnes Leerzeichen.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// NormalizeName erzeugt den natürlichen Schlüssel für Autoren, Venues und Tags:
// NFKC (Ligaturen, Vollbreite), Case-Folding und kollabierter Leerraum.
// Ein Caser ist zustandsbehaftet und wird pro Aufruf erzeugt.
func NormalizeName(s string) string {
	normalized, _, err := transform.String(norm.NFKC, s)
	if err != nil {
		normalized = s
	}
	return CollapseWhitespace(cases.Fold().String(normalized))
}

// NormalizeDOI entfernt URL-Präfixe und vereinheitlicht die Schreibweise.
func NormalizeDOI(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "https://doi.org/")
	s = strings.TrimPrefix(s, "http://doi.org/")
	s = strings.TrimPrefix(s, "https://dx.doi.org/")
	s = strings.TrimPrefix(s, "http://dx.doi.org/")
	s = strings.TrimPrefix(s, "doi:")
	return strings.TrimSpace(s)
}
