package model

import "time"

// Image is an uploaded photo. The bytes live in object storage under
// StorageKey; this row only tracks ownership and metadata.
type Image struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	StorageKey  string    `json:"-"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Analysis is an opaque AI-analysis result attached to an image. Payload is
// stored and returned byte-for-byte; the server never parses it.
type Analysis struct {
	ImageID       string
	SchemaVersion int
	ContentType   string
	Payload       []byte
	UpdatedAt     time.Time
}
