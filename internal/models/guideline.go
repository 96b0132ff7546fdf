package models

import "time"

// GuidelineFolder groups guideline files by subject.
type GuidelineFolder struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Subject   string    `db:"subject" json:"subject"`
	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GuidelineFile is the stored metadata for one uploaded document.
type GuidelineFile struct {
	ID         string    `db:"id" json:"id"`
	FolderID   string    `db:"folder_id" json:"folder_id"`
	Name       string    `db:"name" json:"name"`
	RelPath    string    `db:"rel_path" json:"-"`
	MimeType   string    `db:"mime_type" json:"mime_type"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy *string   `db:"uploaded_by" json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
