package models

import (
	"time"
)

// Work repräsentiert eine wissenschaftliche Arbeit und deren Metadaten.
type Work struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title           string  `json:"title" gorm:"type:text;not null;index"`
	Abstract        string  `json:"abstract,omitempty" gorm:"type:text"`
	PublicationYear *int    `json:"publication_year,omitempty"`
	// Normalisierter externer Identifier (z.B. DOI). Bewusst nicht unique:
	// Dubletten werden vom Dedup-Lauf zusammengeführt.
	ExternalID     *string `json:"external_id,omitempty" gorm:"size:512;index"`
	SourceLocation string  `json:"source_location,omitempty" gorm:"type:text"`

	VenueID    *uint `json:"venue_id,omitempty" gorm:"index"`
	CategoryID *uint `json:"category_id,omitempty" gorm:"index"`
}

// Venue ist ein Publikationsorgan (Journal, Konferenz).
type Venue struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Name     string `json:"name" gorm:"type:text;not null"`
	NameNorm string `json:"name_norm" gorm:"size:512;not null;uniqueIndex"`
}

// Category ist das Forschungsfeld einer Arbeit.
type Category struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"size:255;not null;uniqueIndex"`
}

// Contributor ist ein Autor.
type Contributor struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Name     string `json:"name" gorm:"type:text;not null"`
	NameNorm string `json:"name_norm" gorm:"size:512;not null;uniqueIndex"`
}

// Tag ist ein Schlagwort, eindeutig innerhalb seiner Kategorie.
type Tag struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	CategoryID uint   `json:"category_id" gorm:"not null;index:idx_tags_scope,unique"`
	Name       string `json:"name" gorm:"type:text;not null"`
	NameNorm   string `json:"name_norm" gorm:"size:255;not null;index:idx_tags_scope,unique"`
}
