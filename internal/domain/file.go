package domain

import "time"

type FileID string

// FileMeta is what peers learn about a shared file; the payload travels only on download.
type FileMeta struct {
	ID           FileID    `json:"file_id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	UploaderID   string    `json:"uploader_id"`
	UploaderName string    `json:"uploader_name"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// FileRecord is immutable once stored.
type FileRecord struct {
	FileMeta
	Data []byte
}
