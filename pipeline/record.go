package pipeline

import (
	"path/filepath"
	"strings"
	"unicode"

	"paper-kb/apperr"
	"paper-kb/models"
	"paper-kb/services"
)

// NormalizeRecord bereinigt einen strukturierten Datensatz vor dem Import.
// Ein Datensatz ohne Titel gilt als unvollständig.
func NormalizeRecord(rec *models.StructuredRecord) error {
	if rec == nil {
		return apperr.Validation("kein Datensatz")
	}
	rec.Title = services.CollapseWhitespace(rec.Title)
	if rec.Title == "" {
		return apperr.Validation("titel fehlt")
	}

	rec.Authors = cleanList(rec.Authors, false)
	rec.Keywords = cleanList(rec.Keywords, true)
	rec.References = cleanList(rec.References, false)
	rec.Abstract = trimOptional(rec.Abstract)
	rec.Venue = trimOptional(rec.Venue)
	rec.Category = trimOptional(rec.Category)

	if rec.ExternalID != nil {
		id := services.NormalizeDOI(*rec.ExternalID)
		rec.ExternalID = nil
		if id != "" {
			rec.ExternalID = &id
		}
	}

	if rec.SourcePath != nil {
		p := strings.TrimSpace(*rec.SourcePath)
		rec.SourcePath = nil
		if ValidSourcePath(p) {
			rec.SourcePath = &p
		}
	}

	for i := range rec.Metadata {
		rec.Metadata[i].Key = strings.TrimSpace(rec.Metadata[i].Key)
	}
	return nil
}

// ValidSourcePath akzeptiert nur lokale Pfade auf eine .pdf-Datei.
func ValidSourcePath(p string) bool {
	if p == "" || strings.Contains(p, "://") {
		return false
	}
	for _, r := range p {
		if unicode.IsControl(r) {
			return false
		}
	}
	base := filepath.Base(p)
	if !strings.EqualFold(filepath.Ext(base), ".pdf") {
		return false
	}
	return len(base) > len(".pdf")
}

func cleanList(values []string, dedupe bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool)
	for _, v := range values {
		v = services.CollapseWhitespace(v)
		if v == "" {
			continue
		}
		if dedupe {
			key := services.NormalizeName(v)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, v)
	}
	return out
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
