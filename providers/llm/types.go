package llm

import "paper-kb/models"

// StructureRequest ist der Body an den Strukturierungsdienst.
type StructureRequest struct {
	SourceName string `json:"source_name"`
	Markdown   string `json:"markdown"`
}

// StructureResponse ist die Antwort des Strukturierungsdienstes.
type StructureResponse struct {
	Record *models.StructuredRecord `json:"record"`
	Error  string                   `json:"error,omitempty"`
}
