package moderation

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/snapevent/internal/auth"
	"example.com/snapevent/internal/cache"
	"example.com/snapevent/internal/metrics"
	"example.com/snapevent/internal/models"
	"example.com/snapevent/internal/repositories"
	"example.com/snapevent/internal/storage"
	"example.com/snapevent/internal/tracing"
)

// pendingSegment is the path segment separating unmoderated files from the
// public gallery; approval removes it.
const pendingSegment = "pending"

// MediaStore is the persistence surface the moderation engine needs
type MediaStore interface {
	GetByID(ctx context.Context, id uint) (*models.Media, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Media, error)
	Approve(ctx context.Context, id uint, newPath string) error
	RemoveBatch(ctx context.Context, media []models.Media, now time.Time) error
	IncrementLikes(ctx context.Context, id uint) (*models.Media, error)
}

// EventGetter loads owning events for authorization
type EventGetter interface {
	GetByID(ctx context.Context, id uint) (*models.Event, error)
}

// DeletionIndexer pushes deletion-log entries into the analytics index
type DeletionIndexer interface {
	IndexDeletionEntry(ctx context.Context, entry models.MediaDeletionEntry) error
}

// GalleryCache invalidates cached public galleries after moderation changes
// what a gallery shows.
type GalleryCache interface {
	Delete(ctx context.Context, key string) error
}

// ItemFailure reports one failed item of a batch
type ItemFailure struct {
	ID     uint   `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult reports the per-item outcome of a batch operation. Valid items
// are processed even when others fail; nothing is silently dropped.
type BatchResult struct {
	Processed []uint        `json:"processed"`
	Missing   []uint        `json:"missing"`
	Failed    []ItemFailure `json:"failed"`
}

// Service approves and rejects pending media while keeping the owning
// events' aggregate counters consistent with the media rows.
type Service struct {
	media     MediaStore
	eventsR   EventGetter
	files     storage.FileStore
	indexer   DeletionIndexer
	galleries GalleryCache
	tracer    tracing.Tracer
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService creates the moderation service. indexer and galleries may be nil.
func NewService(
	media MediaStore,
	eventsR EventGetter,
	files storage.FileStore,
	indexer DeletionIndexer,
	galleries GalleryCache,
	tracer tracing.Tracer,
	m *metrics.Metrics,
) *Service {
	return &Service{
		media:     media,
		eventsR:   eventsR,
		files:     files,
		indexer:   indexer,
		galleries: galleries,
		tracer:    tracer,
		metrics:   m,
		now:       time.Now,
	}
}

// Approve approves the given media: each file stored under a pending segment
// is relocated to its public path, and only then is the record updated. A
// failed move aborts that item alone; the rest of the batch proceeds.
func (s *Service) Approve(ctx context.Context, p auth.Principal, ids []uint) (BatchResult, error) {
	txn := s.tracer.StartTransaction("media-approve")
	defer s.tracer.EndTransaction(txn)

	found, result, err := s.loadBatch(ctx, ids)
	if err != nil {
		return BatchResult{}, err
	}

	owned, slugs := s.authorizeBatch(ctx, p, found, &result)
	for i := range owned {
		m := &owned[i]
		newPath, moved := ApprovedPath(m.StoragePath)
		if moved {
			if err := s.files.Move(m.StoragePath, newPath); err != nil {
				s.tracer.RecordError(txn, err)
				log.Error().Err(err).
					Uint("media_id", m.ID).
					Str("path", m.StoragePath).
					Msg("Failed to relocate approved media")
				result.Failed = append(result.Failed, ItemFailure{ID: m.ID, Reason: "storage relocation failed"})
				continue
			}
		}
		if err := s.media.Approve(ctx, m.ID, newPath); err != nil {
			s.tracer.RecordError(txn, err)
			log.Error().Err(err).Uint("media_id", m.ID).Msg("Failed to persist approval")
			result.Failed = append(result.Failed, ItemFailure{ID: m.ID, Reason: "database update failed"})
			continue
		}
		result.Processed = append(result.Processed, m.ID)
	}

	if len(result.Processed) > 0 {
		s.invalidateGalleries(ctx, slugs)
	}
	s.metrics.Add(metrics.MediaApproved, int64(len(result.Processed)))
	return result, nil
}

// Reject deletes the given media. Files are removed best-effort first, then
// rows, deletion-log entries and counter adjustments commit together, grouped
// per owning event.
func (s *Service) Reject(ctx context.Context, p auth.Principal, ids []uint) (BatchResult, error) {
	txn := s.tracer.StartTransaction("media-reject")
	defer s.tracer.EndTransaction(txn)

	found, result, err := s.loadBatch(ctx, ids)
	if err != nil {
		return BatchResult{}, err
	}
	owned, slugs := s.authorizeBatch(ctx, p, found, &result)
	if len(owned) == 0 {
		return result, nil
	}

	now := s.now()
	for i := range owned {
		s.deleteFiles(&owned[i])
	}

	if err := s.media.RemoveBatch(ctx, owned, now); err != nil {
		s.tracer.RecordError(txn, err)
		return BatchResult{}, err
	}
	for i := range owned {
		result.Processed = append(result.Processed, owned[i].ID)
		if s.indexer != nil {
			entry := models.MediaDeletionEntry{
				EventID:   owned[i].EventID,
				MediaID:   owned[i].ID,
				DeletedAt: now,
			}
			if err := s.indexer.IndexDeletionEntry(ctx, entry); err != nil {
				log.Warn().Err(err).Uint("media_id", owned[i].ID).Msg("Failed to index deletion entry")
			}
		}
	}

	s.invalidateGalleries(ctx, slugs)

	s.metrics.Add(metrics.MediaRejected, int64(len(owned)))
	log.Info().
		Int("count", len(owned)).
		Msg("Media rejected and counters adjusted")
	return result, nil
}

// Delete removes a single media item with the same bookkeeping as Reject
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uint) error {
	result, err := s.Reject(ctx, p, []uint{id})
	if err != nil {
		return err
	}
	if len(result.Missing) > 0 {
		return repositories.ErrNotFound
	}
	if len(result.Failed) > 0 {
		return auth.ErrForbidden
	}
	return nil
}

// Like increments a photo's like count and the owning event's aggregate.
// It is public: guests like photos without authenticating.
func (s *Service) Like(ctx context.Context, id uint) (int, error) {
	m, err := s.media.IncrementLikes(ctx, id)
	if err != nil {
		return 0, err
	}
	s.metrics.Inc(metrics.MediaLiked)
	return m.LikeCount, nil
}

// loadBatch loads the requested rows and records the missing ids
func (s *Service) loadBatch(ctx context.Context, ids []uint) ([]models.Media, BatchResult, error) {
	var result BatchResult
	found, err := s.media.GetByIDs(ctx, ids)
	if err != nil {
		return nil, result, err
	}
	byID := make(map[uint]bool, len(found))
	for _, m := range found {
		byID[m.ID] = true
	}
	for _, id := range ids {
		if !byID[id] {
			result.Missing = append(result.Missing, id)
		}
	}
	return found, result, nil
}

// authorizeBatch filters the batch down to media on events the principal
// manages, recording the rest as failed items. It returns the share slugs of
// the touched events so their cached galleries can be invalidated.
func (s *Service) authorizeBatch(ctx context.Context, p auth.Principal, media []models.Media, result *BatchResult) ([]models.Media, map[uint]string) {
	allowed := make(map[uint]bool)
	checked := make(map[uint]bool)
	slugs := make(map[uint]string)
	owned := media[:0:0]
	for _, m := range media {
		if !checked[m.EventID] {
			checked[m.EventID] = true
			ev, err := s.eventsR.GetByID(ctx, m.EventID)
			if err == nil && p.CanManage(ev) {
				allowed[m.EventID] = true
				slugs[m.EventID] = ev.ShareSlug
			}
		}
		if allowed[m.EventID] {
			owned = append(owned, m)
		} else {
			result.Failed = append(result.Failed, ItemFailure{ID: m.ID, Reason: "forbidden"})
		}
	}
	return owned, slugs
}

// invalidateGalleries drops the cached galleries of every touched event
func (s *Service) invalidateGalleries(ctx context.Context, slugs map[uint]string) {
	if s.galleries == nil {
		return
	}
	for _, slug := range slugs {
		if err := s.galleries.Delete(ctx, cache.GetEventCacheKey(slug)); err != nil {
			log.Debug().Err(err).Str("slug", slug).Msg("Failed to invalidate gallery cache")
		}
	}
}

// deleteFiles removes a media item's stored files, logging failures instead
// of blocking the record deletion.
func (s *Service) deleteFiles(m *models.Media) {
	if err := s.files.Delete(m.StoragePath); err != nil {
		log.Warn().Err(err).
			Uint("media_id", m.ID).
			Str("path", m.StoragePath).
			Msg("Failed to delete media file")
	}
	if m.PreviewPath != nil {
		if err := s.files.Delete(*m.PreviewPath); err != nil {
			log.Warn().Err(err).
				Uint("media_id", m.ID).
				Str("path", *m.PreviewPath).
				Msg("Failed to delete preview file")
		}
	}
}

// ApprovedPath strips the pending segment from a storage path. The second
// return value reports whether the path actually changes.
func ApprovedPath(path string) (string, bool) {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == pendingSegment {
			rewritten := append(append([]string{}, segments[:i]...), segments[i+1:]...)
			return strings.Join(rewritten, "/"), true
		}
	}
	return path, false
}
