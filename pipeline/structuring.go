package pipeline

import (
	"context"
	"os"

	"paper-kb/models"
	"paper-kb/providers"
	"paper-kb/services"

	"go.uber.org/zap"
)

// Structured ist das Ergebnis der Strukturierung.
type Structured struct {
	Source string
	Record *models.StructuredRecord
}

// StructuringStage kapselt den Aufruf des Strukturierungsdienstes und die Validierung.
type StructuringStage struct {
	Structurer providers.Structurer
	Logger     *zap.Logger
}

func (s *StructuringStage) Handle(ctx context.Context, worker int, a Artifact) (Structured, error) {
	rec, err := s.Structurer.Structure(ctx, a.Path)
	if err != nil {
		return Structured{}, err
	}
	if rec != nil && rec.SourcePath == nil && a.Source != "" {
		src := a.Source
		rec.SourcePath = &src
	}
	if err := NormalizeRecord(rec); err != nil {
		return Structured{}, err
	}
	if len(rec.References) == 0 {
		s.fillReferences(a.Path, rec)
	}
	return Structured{Source: a.Source, Record: rec}, nil
}

// fillReferences liest das Literaturverzeichnis aus dem Markdown, wenn der
// Dienst keine Referenzen geliefert hat.
func (s *StructuringStage) fillReferences(path string, rec *models.StructuredRecord) {
	content, err := os.ReadFile(path)
	if err != nil {
		return
	}
	refs := ReferencesFromMarkdown(string(content))
	if len(refs) == 0 {
		return
	}
	rec.References = refs
	if s.Logger != nil {
		s.Logger.Debug("References taken from markdown", zap.String("artifact", path), zap.Int("count", len(refs)))
	}
}

// ReferencesFromMarkdown ist services.ReferenceSection mit bereinigten Zeilen.
func ReferencesFromMarkdown(markdown string) []string {
	return cleanList(services.ReferenceSection(markdown), false)
}
