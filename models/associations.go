package models

// WorkContributor verknüpft eine Arbeit mit ihren Autoren in deklarierter Reihenfolge.
type WorkContributor struct {
	WorkID        uint `json:"work_id" gorm:"primaryKey;autoIncrement:false"`
	ContributorID uint `json:"contributor_id" gorm:"primaryKey;autoIncrement:false;index"`
	Position      int  `json:"position"`
}

// WorkTag verknüpft eine Arbeit mit einem Schlagwort.
type WorkTag struct {
	WorkID uint `json:"work_id" gorm:"primaryKey;autoIncrement:false"`
	TagID  uint `json:"tag_id" gorm:"primaryKey;autoIncrement:false;index"`
}

// WorkMetadata ist ein freier Schlüssel/Wert-Eintrag, eindeutig pro Arbeit und Schlüssel.
type WorkMetadata struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	WorkID  uint   `json:"work_id" gorm:"not null;index:idx_work_metadata_key,unique"`
	MetaKey string `json:"key" gorm:"size:128;not null;index:idx_work_metadata_key,unique;check:chk_work_metadata_key,length(trim(meta_key)) > 0"`
	Value   string `json:"value" gorm:"type:text"`
	Type    string `json:"type" gorm:"size:32;default:'string'"`
}

func (WorkMetadata) TableName() string { return "work_metadata" }

// Citation modelliert eine gerichtete Kante: Quelle zitiert Ziel (A cites B)
type Citation struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	CitingWorkID uint `json:"citing_work_id" gorm:"not null;index:idx_citations_unique_edge,unique"`
	CitedWorkID  uint `json:"cited_work_id" gorm:"not null;index:idx_citations_unique_edge,unique;index"`
}
