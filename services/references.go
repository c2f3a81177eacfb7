package services

import (
	"regexp"
	"strings"
)

var doiRE = regexp.MustCompile(`(?i)10\.\d{4,9}/[^\s"<>]+`)

// ExtractDOIs sammelt die normalisierten DOIs aus einer Liste von Literaturangaben.
// Jede DOI erscheint höchstens einmal, in der Reihenfolge ihres ersten Auftretens.
func ExtractDOIs(references []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ref := range references {
		for _, m := range doiRE.FindAllString(ref, -1) {
			doi := NormalizeDOI(strings.TrimRight(m, ".,;)]"))
			if doi == "" || seen[doi] {
				continue
			}
			seen[doi] = true
			out = append(out, doi)
		}
	}
	return out
}

var referenceHeadings = []string{
	"References",
	"Bibliography",
	"Literature",
	"Literature Cited",
	"Works Cited",
	"Literaturverzeichnis",
	"Literatur",
	"Quellen",
}

var headingPrefixRE = regexp.MustCompile(`^(#{1,6}\s*|[0-9]+\.?\s*)`)

// isReferenceHeading erkennt "References", "## References" oder "7. References".
func isReferenceHeading(line string) bool {
	line = strings.TrimSpace(headingPrefixRE.ReplaceAllString(strings.TrimSpace(line), ""))
	line = strings.Trim(line, "*_: ")
	for _, h := range referenceHeadings {
		if strings.EqualFold(line, h) {
			return true
		}
	}
	return false
}

var referenceLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Z][a-zA-Z\s,&.-]+\(\d{4}[a-z]?\)`), // Autor (Jahr)
	regexp.MustCompile(`[A-Z][a-zA-Z\s,&-]+\.\s*\d{4}[a-z]?`),  // Autor. Jahr
	regexp.MustCompile(`\d+\(\d+\):\s*\d+[-–]\d+`),            // Vol(Issue): Seiten
	regexp.MustCompile(`(?i)doi[:.]|10\.\d{4,9}/`),
	regexp.MustCompile(`https?://\S+`),
	regexp.MustCompile(`^\[?\d+[\].]\s+[A-Z]`), // [1] Autor / 1. Autor
}

func looksLikeReference(line string) bool {
	if len(line) < 15 {
		return false
	}
	for _, re := range referenceLinePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// ReferenceSection liefert die Literaturangaben unterhalb der letzten
// Literaturverzeichnis-Überschrift eines Markdown-Dokuments. Ein folgender
// Markdown-Abschnitt (z.B. Appendix) beendet das Verzeichnis. Ohne Überschrift
// ist das Ergebnis leer.
func ReferenceSection(markdown string) []string {
	lines := strings.Split(markdown, "\n")
	start := -1
	for i, line := range lines {
		if isReferenceHeading(line) {
			start = i
		}
	}
	if start == -1 {
		return nil
	}

	var refs []string
	for _, line := range lines[start+1:] {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			break
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "-*"))
		if looksLikeReference(line) {
			refs = append(refs, line)
		}
	}
	return refs
}
