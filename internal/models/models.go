package models

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// EventStatus is the lifecycle state of an event
type EventStatus string

// Event lifecycle states. Ended is terminal: no transition leaves it.
const (
	EventStatusScheduled EventStatus = "scheduled"
	EventStatusLive      EventStatus = "live"
	EventStatusPaused    EventStatus = "paused"
	EventStatusEnded     EventStatus = "ended"
)

// MediaStatus is the moderation state of an uploaded photo or video
type MediaStatus string

const (
	MediaStatusPending  MediaStatus = "pending"
	MediaStatusApproved MediaStatus = "approved"
)

// User roles
const (
	RoleAdmin = "admin"
	RoleRoot  = "root"
)

// User is an organizer account. Guests are anonymous and never stored.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Email     string         `gorm:"not null;uniqueIndex" json:"email"`
	Name      string         `gorm:"not null" json:"name"`
	Role      string         `gorm:"not null;default:admin" json:"role"`
	APIToken  string         `gorm:"not null;uniqueIndex" json:"-"`
	Events    []Event        `gorm:"foreignKey:OwnerID" json:"-"`
}

// Event is an organizer-created photo-collection session with its own
// QR code and lifecycle.
type Event struct {
	ID                uint        `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	Name              string      `gorm:"not null" json:"name"`
	Description       string      `json:"description"`
	ShareSlug         string      `gorm:"not null;uniqueIndex" json:"share_slug"`
	Status            EventStatus `gorm:"not null;default:scheduled;index" json:"status"`
	ScheduledDate     *time.Time  `json:"scheduled_date"`
	ScheduledStartAt  *time.Time  `json:"scheduled_start_at"`
	AutoEndAt         *time.Time  `json:"auto_end_at"`
	OwnerID           *uint       `gorm:"index" json:"owner_id"`
	RequireModeration bool        `gorm:"not null;default:false" json:"require_moderation"`
	UploadPolicy      string      `gorm:"not null;default:everyone" json:"upload_policy"`
	ViewPolicy        string      `gorm:"not null;default:everyone" json:"view_policy"`
	PhotoCount        int         `gorm:"not null;default:0" json:"photo_count"`
	DeletedPhotoCount int         `gorm:"not null;default:0" json:"deleted_photo_count"`
	LikeCount         int         `gorm:"not null;default:0" json:"like_count"`
	AccentColor       string      `json:"accent_color"`
	BackgroundPath    string      `json:"background_path"`
	Media             []Media     `gorm:"foreignKey:EventID" json:"-"`
}

// Media is an uploaded photo or video attached to an event
type Media struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time   `gorm:"autoCreateTime" json:"created_at"`
	EventID          uint        `gorm:"not null;index" json:"event_id"`
	StoragePath      string      `gorm:"not null" json:"storage_path"`
	PreviewPath      *string     `json:"preview_path"`
	OriginalFilename string      `gorm:"not null" json:"original_filename"`
	Status           MediaStatus `gorm:"not null;default:pending;index" json:"status"`
	LikeCount        int         `gorm:"not null;default:0" json:"like_count"`
	UploadedAt       time.Time   `gorm:"not null" json:"uploaded_at"`
}

// EventAudit is the immutable snapshot written when an event is deleted.
// TotalPhotosAtDelete counts the media rows removed by the final cascade,
// not the (possibly already decremented) photo_count.
type EventAudit struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	EventID                 uint       `gorm:"not null;index" json:"event_id"`
	OwnerID                 *uint      `json:"owner_id"`
	Name                    string     `gorm:"not null" json:"name"`
	EventCreatedAt          time.Time  `gorm:"not null" json:"event_created_at"`
	DeletedAt               time.Time  `gorm:"not null" json:"deleted_at"`
	TotalPhotosAtDelete     int        `gorm:"not null" json:"total_photos_at_delete"`
	DeletedPhotosCumulative int        `gorm:"not null" json:"deleted_photos_cumulative"`
}

// MediaDeletionEntry is the append-only log written whenever a photo is
// removed. It feeds deletion analytics and is never required to be in
// real-time agreement with photo_count.
type MediaDeletionEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   uint      `gorm:"not null;index" json:"event_id"`
	MediaID   uint      `gorm:"not null" json:"media_id"`
	DeletedAt time.Time `gorm:"not null" json:"deleted_at"`
}

// CleanupFailure is a dead-letter row for file cleanup that exhausted its
// retries. Operators reconcile orphaned files from these.
type CleanupFailure struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	Path      string    `gorm:"not null" json:"path"`
	Op        string    `gorm:"not null" json:"op"`
	Attempts  int       `gorm:"not null" json:"attempts"`
	LastError string    `json:"last_error"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Event{},
		&Media{},
		&EventAudit{},
		&MediaDeletionEntry{},
		&CleanupFailure{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
