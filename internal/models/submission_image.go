package models

import "time"

// SubmissionImage points at a photo stored in the object store.
type SubmissionImage struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	SubmissionKind SubmissionKind `gorm:"size:20;not null;index:idx_image_submission" json:"submission_kind"`
	SubmissionID   uint           `gorm:"not null;index:idx_image_submission" json:"submission_id"`
	Bucket         string         `gorm:"size:100;not null" json:"bucket"`
	ObjectKey      string         `gorm:"size:255;not null;uniqueIndex" json:"object_key"`
	FileName       string         `gorm:"size:255" json:"file_name"`
	ContentType    string         `gorm:"size:50" json:"content_type"`
	Size           int64          `json:"size"`
	URL            string         `gorm:"size:500" json:"url"`
	UploadedBy     uint           `json:"uploaded_by"`
	CreatedAt      time.Time      `json:"created_at"`
}
