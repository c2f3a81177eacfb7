package models

// MetadataEntry ist ein freier Schlüssel/Wert-Eintrag eines strukturierten Datensatzes.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// StructuredRecord ist das Ergebnis der Strukturierungsstufe.
type StructuredRecord struct {
	Title      string          `json:"title"`
	Authors    []string        `json:"authors"`
	Abstract   *string         `json:"abstract,omitempty"`
	Keywords   []string        `json:"keywords"`
	Year       *int            `json:"year,omitempty"`
	Venue      *string         `json:"venue,omitempty"`
	Category   *string         `json:"category,omitempty"`
	ExternalID *string         `json:"external_id,omitempty"`
	References []string        `json:"references"`
	SourcePath *string         `json:"source_path,omitempty"`
	Metadata   []MetadataEntry `json:"metadata,omitempty"`
}

// All liefert alle Modelle für die Migration.
func All() []any {
	return []any{
		&Venue{}, &Category{}, &Contributor{}, &Tag{}, &Work{},
		&WorkContributor{}, &WorkTag{}, &WorkMetadata{}, &Citation{}, &PipelineRun{},
	}
}
