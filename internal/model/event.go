package model

import "time"

const (
	EventActionCreate = "create"
	EventActionEdit   = "edit"
	EventActionDelete = "delete"
)

// DatasetEvent describes one completed dataset operation. Events are
// published to the broker after the operation commits and persisted into the
// audit table by the audit worker.
type DatasetEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DatasetID  string    `gorm:"size:64;not null;index" json:"dataset_id"`
	UID        string    `gorm:"size:64;not null;index" json:"uid"`
	Username   string    `gorm:"size:64;not null" json:"username"`
	Action     string    `gorm:"size:16;not null;index" json:"action"`
	UploadType string    `gorm:"size:16" json:"upload_type"`
	Categories string    `gorm:"size:64" json:"categories"`
	CreatedAt  time.Time `json:"created_at"`
}
