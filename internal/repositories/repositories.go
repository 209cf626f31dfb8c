package repositories

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/snapevent/internal/events"
	"example.com/snapevent/internal/models"
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// EventRepository provides access to event data
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event
func (r *EventRepository) Create(ctx context.Context, ev *models.Event) error {
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return errors.Wrap(err, "failed to create event")
	}
	return nil
}

// GetByID gets an event by ID
func (r *EventRepository) GetByID(ctx context.Context, id uint) (*models.Event, error) {
	var ev models.Event
	if err := r.db.WithContext(ctx).First(&ev, id).Error; err != nil {
		return nil, errors.Wrap(translate(err), "failed to get event by ID")
	}
	return &ev, nil
}

// GetBySlug gets an event by its share slug
func (r *EventRepository) GetBySlug(ctx context.Context, slug string) (*models.Event, error) {
	var ev models.Event
	if err := r.db.WithContext(ctx).Where("share_slug = ?", slug).First(&ev).Error; err != nil {
		return nil, errors.Wrap(translate(err), "failed to get event by slug")
	}
	return &ev, nil
}

// ListByOwner lists events owned by a user
func (r *EventRepository) ListByOwner(ctx context.Context, ownerID uint) ([]models.Event, error) {
	var evs []models.Event
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&evs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events by owner")
	}
	return evs, nil
}

// ListAll lists every event (root scope)
func (r *EventRepository) ListAll(ctx context.Context) ([]models.Event, error) {
	var evs []models.Event
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&evs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	return evs, nil
}

// ListUnfinished lists events not yet in the terminal state, for the
// scheduler sweep
func (r *EventRepository) ListUnfinished(ctx context.Context) ([]models.Event, error) {
	var evs []models.Event
	err := r.db.WithContext(ctx).
		Where("status <> ?", models.EventStatusEnded).
		Find(&evs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unfinished events")
	}
	return evs, nil
}

// UpdateSettings applies a settings patch to an event
func (r *EventRepository) UpdateSettings(ctx context.Context, id uint, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update event settings")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyStatusChange writes a state-machine change set. The status guard keeps
// a concurrent sweep or API call from resurrecting an event that ended in
// between read and write.
func (r *EventRepository) ApplyStatusChange(ctx context.Context, id uint, ch events.Change) error {
	updates := map[string]interface{}{"status": ch.Status}
	if ch.ScheduledStartAt != nil {
		updates["scheduled_start_at"] = ch.ScheduledStartAt
	}
	if ch.AutoEndAt != nil {
		updates["auto_end_at"] = ch.AutoEndAt
	}

	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ? AND status <> ?", id, models.EventStatusEnded).
		Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to apply status change")
	}
	if result.RowsAffected == 0 {
		return errors.Wrap(ErrStaleWrite, "event ended or deleted concurrently")
	}
	return nil
}

// IncrementPhotoCount bumps an event's photo counter. Negative deltas clamp
// at zero.
func (r *EventRepository) IncrementPhotoCount(ctx context.Context, id uint, delta int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", id).
		Update("photo_count", gorm.Expr("GREATEST(photo_count + ?, 0)", delta))
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update photo count")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCascade removes an event with all its media rows and writes exactly
// one audit record, in a single transaction. It returns the audit snapshot
// and the storage paths of the removed media so the caller can clean up
// files after commit.
func (r *EventRepository) DeleteCascade(ctx context.Context, ev *models.Event, now time.Time) (*models.EventAudit, []string, error) {
	var audit *models.EventAudit
	var paths []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var media []models.Media
		if err := tx.Where("event_id = ?", ev.ID).Find(&media).Error; err != nil {
			return errors.Wrap(err, "failed to load event media")
		}
		for _, m := range media {
			paths = append(paths, m.StoragePath)
			if m.PreviewPath != nil {
				paths = append(paths, *m.PreviewPath)
			}
		}

		if err := tx.Where("event_id = ?", ev.ID).Delete(&models.Media{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete event media")
		}

		result := tx.Delete(&models.Event{}, ev.ID)
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to delete event")
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		// total_photos_at_delete counts the rows removed right now, not the
		// photo_count, which prior rejections may already have decremented.
		audit = &models.EventAudit{
			EventID:                 ev.ID,
			OwnerID:                 ev.OwnerID,
			Name:                    ev.Name,
			EventCreatedAt:          ev.CreatedAt,
			DeletedAt:               now,
			TotalPhotosAtDelete:     len(media),
			DeletedPhotosCumulative: ev.DeletedPhotoCount,
		}
		if err := tx.Create(audit).Error; err != nil {
			return errors.Wrap(err, "failed to write event audit record")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return audit, paths, nil
}

// MediaRepository provides access to uploaded media
type MediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create inserts a new media row
func (r *MediaRepository) Create(ctx context.Context, m *models.Media) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(err, "failed to create media")
	}
	return nil
}

// GetByID gets a media row by ID
func (r *MediaRepository) GetByID(ctx context.Context, id uint) (*models.Media, error) {
	var m models.Media
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, errors.Wrap(translate(err), "failed to get media by ID")
	}
	return &m, nil
}

// GetByIDs loads the media rows for the given ids. Missing ids are simply
// absent from the result; batch callers report them as not found.
func (r *MediaRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Media, error) {
	var media []models.Media
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&media).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get media by ids")
	}
	return media, nil
}

// ListByEvent lists an event's media, optionally including pending items
func (r *MediaRepository) ListByEvent(ctx context.Context, eventID uint, includePending bool) ([]models.Media, error) {
	q := r.db.WithContext(ctx).Where("event_id = ?", eventID)
	if !includePending {
		q = q.Where("status = ?", models.MediaStatusApproved)
	}
	var media []models.Media
	if err := q.Order("uploaded_at ASC").Find(&media).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list event media")
	}
	return media, nil
}

// SetPreviewPath records the generated preview derivative for a media row
func (r *MediaRepository) SetPreviewPath(ctx context.Context, id uint, path string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Media{}).
		Where("id = ?", id).
		Update("preview_path", path)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to set preview path")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Approve persists an approval: new storage path and approved status in one
// write. Callers relocate the file first and only persist on success.
func (r *MediaRepository) Approve(ctx context.Context, id uint, newPath string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Media{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"storage_path": newPath,
			"status":       models.MediaStatusApproved,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to approve media")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveBatch deletes media rows, appends one deletion-log entry per item and
// adjusts the owning events' counters, all in a single transaction. Counter
// arithmetic clamps at zero so concurrent removals can never drive an event
// negative.
func (r *MediaRepository) RemoveBatch(ctx context.Context, media []models.Media, now time.Time) error {
	if len(media) == 0 {
		return nil
	}

	type eventTotals struct {
		photos int
		likes  int
	}
	perEvent := make(map[uint]*eventTotals)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]uint, 0, len(media))
		entries := make([]models.MediaDeletionEntry, 0, len(media))
		for _, m := range media {
			ids = append(ids, m.ID)
			entries = append(entries, models.MediaDeletionEntry{
				EventID:   m.EventID,
				MediaID:   m.ID,
				DeletedAt: now,
			})
			t := perEvent[m.EventID]
			if t == nil {
				t = &eventTotals{}
				perEvent[m.EventID] = t
			}
			t.photos++
			t.likes += m.LikeCount
		}

		if err := tx.Where("id IN ?", ids).Delete(&models.Media{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete media rows")
		}
		if err := tx.Create(&entries).Error; err != nil {
			return errors.Wrap(err, "failed to append deletion log entries")
		}

		for eventID, t := range perEvent {
			err := tx.Model(&models.Event{}).
				Where("id = ?", eventID).
				Updates(map[string]interface{}{
					"photo_count":         gorm.Expr("GREATEST(photo_count - ?, 0)", t.photos),
					"like_count":          gorm.Expr("GREATEST(like_count - ?, 0)", t.likes),
					"deleted_photo_count": gorm.Expr("deleted_photo_count + ?", t.photos),
				}).Error
			if err != nil {
				return errors.Wrapf(err, "failed to adjust counters for event %d", eventID)
			}
		}
		return nil
	})
}

// IncrementLikes bumps a media row's like counter and the owning event's
// aggregate in one transaction, returning the refreshed media row.
func (r *MediaRepository) IncrementLikes(ctx context.Context, id uint) (*models.Media, error) {
	var m models.Media
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Media{}).
			Where("id = ?", id).
			Update("like_count", gorm.Expr("like_count + 1"))
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to increment media likes")
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.First(&m, id).Error; err != nil {
			return errors.Wrap(translate(err), "failed to reload media")
		}
		err := tx.Model(&models.Event{}).
			Where("id = ?", m.EventID).
			Update("like_count", gorm.Expr("like_count + 1")).Error
		return errors.Wrap(err, "failed to increment event likes")
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AuditRepository provides access to event audit records
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// List returns all audit records, newest first
func (r *AuditRepository) List(ctx context.Context) ([]models.EventAudit, error) {
	var audits []models.EventAudit
	if err := r.db.WithContext(ctx).Order("deleted_at DESC").Find(&audits).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list audit records")
	}
	return audits, nil
}

// Delete removes an audit record. Only the root role reaches this.
func (r *AuditRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.EventAudit{}, id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete audit record")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UserRepository provides access to organizer accounts
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return errors.Wrap(err, "failed to create user")
	}
	return nil
}

// GetByToken looks up a user by API token for the auth middleware
func (r *UserRepository) GetByToken(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("api_token = ?", token).First(&u).Error; err != nil {
		return nil, errors.Wrap(translate(err), "failed to get user by token")
	}
	return &u, nil
}

// CleanupRepository records dead-lettered file cleanup failures
type CleanupRepository struct {
	db *gorm.DB
}

// NewCleanupRepository creates a new cleanup repository
func NewCleanupRepository(db *gorm.DB) *CleanupRepository {
	return &CleanupRepository{db: db}
}

// RecordCleanupFailure appends a dead-letter row after retries are exhausted
func (r *CleanupRepository) RecordCleanupFailure(ctx context.Context, f models.CleanupFailure) error {
	if err := r.db.WithContext(ctx).Create(&f).Error; err != nil {
		return errors.Wrap(err, "failed to record cleanup failure")
	}
	return nil
}
