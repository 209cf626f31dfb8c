package media

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snapevent/internal/auth"
	"example.com/snapevent/internal/cache"
	"example.com/snapevent/internal/events"
	"example.com/snapevent/internal/messaging"
	"example.com/snapevent/internal/metrics"
	"example.com/snapevent/internal/models"
	"example.com/snapevent/internal/storage"
	"example.com/snapevent/internal/tracing"
)

// Upload rejection errors
var (
	ErrEventNotLive    = errors.New("event is not accepting uploads")
	ErrUploadsClosed   = errors.New("event does not accept guest uploads")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// UploadPolicyEveryone is the default upload policy: any guest holding the
// share link may upload. Any other value closes the guest upload route.
const UploadPolicyEveryone = "everyone"

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".heic": true,
	".mp4":  true,
	".mov":  true,
	".webm": true,
}

// EventStore is the event-side persistence surface uploads need
type EventStore interface {
	GetByID(ctx context.Context, id uint) (*models.Event, error)
	GetBySlug(ctx context.Context, slug string) (*models.Event, error)
	IncrementPhotoCount(ctx context.Context, id uint, delta int) error
}

// MediaStore is the media-side persistence surface
type MediaStore interface {
	Create(ctx context.Context, m *models.Media) error
	GetByID(ctx context.Context, id uint) (*models.Media, error)
	ListByEvent(ctx context.Context, eventID uint, includePending bool) ([]models.Media, error)
	SetPreviewPath(ctx context.Context, id uint, path string) error
}

// PreviewGenerator renders downscaled previews for stored images
type PreviewGenerator interface {
	Generate(path string) (string, error)
}

// Cache keeps the public gallery payload hot for the share-link traffic
// spike right after an event goes live.
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// galleryCacheTTL bounds how stale a cached public gallery can get
const galleryCacheTTL = 15 * time.Second

// Service handles guest uploads and the gallery listing. Uploads only land
// on live events; everything else is rejected up front.
type Service struct {
	eventsR   EventStore
	media     MediaStore
	files     storage.FileStore
	publisher messaging.Publisher
	previews  PreviewGenerator
	galleries Cache
	tracer    tracing.Tracer
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService creates the media service. publisher may be nil when the queue
// is not configured; previews are then generated inline. galleries may be nil
// when Redis is unavailable.
func NewService(
	eventsR EventStore,
	media MediaStore,
	files storage.FileStore,
	publisher messaging.Publisher,
	previews PreviewGenerator,
	galleries Cache,
	tracer tracing.Tracer,
	m *metrics.Metrics,
) *Service {
	return &Service{
		eventsR:   eventsR,
		media:     media,
		files:     files,
		publisher: publisher,
		previews:  previews,
		galleries: galleries,
		tracer:    tracer,
		metrics:   m,
		now:       time.Now,
	}
}

// UploadInput carries one guest upload
type UploadInput struct {
	Slug        string
	Filename    string
	ContentType string
	Body        io.Reader
}

// Upload stores a guest's photo or video on a live event. Moderated events
// park the file under a pending segment until an organizer approves it.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Media, error) {
	txn := s.tracer.StartTransaction("media-upload")
	defer s.tracer.EndTransaction(txn)

	ev, err := s.eventsR.GetBySlug(ctx, in.Slug)
	if err != nil {
		return nil, err
	}
	if ev.Status != models.EventStatusLive {
		return nil, errors.Wrapf(ErrEventNotLive, "event %d is %s", ev.ID, ev.Status)
	}
	if ev.UploadPolicy != "" && ev.UploadPolicy != UploadPolicyEveryone {
		return nil, errors.Wrapf(ErrUploadsClosed, "policy %q", ev.UploadPolicy)
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	if !allowedExtensions[ext] {
		return nil, errors.Wrapf(ErrUnsupportedType, "extension %q", ext)
	}

	path := storagePath(ev, ext)
	if err := s.files.Save(path, in.Body); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	status := models.MediaStatusApproved
	if ev.RequireModeration {
		status = models.MediaStatusPending
	}
	m := &models.Media{
		EventID:          ev.ID,
		StoragePath:      path,
		OriginalFilename: in.Filename,
		Status:           status,
		UploadedAt:       s.now(),
	}
	if err := s.media.Create(ctx, m); err != nil {
		s.tracer.RecordError(txn, err)
		// The row failed; do not leave the file behind.
		if derr := s.files.Delete(path); derr != nil {
			log.Warn().Err(derr).Str("path", path).Msg("Failed to delete orphaned upload")
		}
		return nil, err
	}

	if err := s.eventsR.IncrementPhotoCount(ctx, ev.ID, 1); err != nil {
		log.Error().Err(err).Uint("event_id", ev.ID).Msg("Failed to increment photo count")
	}
	s.invalidateGallery(ctx, ev.ShareSlug)

	s.dispatchPostProcessing(ctx, m, in.ContentType)

	s.metrics.Inc(metrics.MediaUploaded)
	log.Info().
		Uint("media_id", m.ID).
		Uint("event_id", ev.ID).
		Str("status", string(m.Status)).
		Msg("Media uploaded")
	return m, nil
}

// dispatchPostProcessing hands the upload to the worker queue, falling back
// to inline preview generation when no queue is configured.
func (s *Service) dispatchPostProcessing(ctx context.Context, m *models.Media, contentType string) {
	if s.publisher != nil {
		msg := messaging.MediaUploadedMessage{
			MediaID:     m.ID,
			EventID:     m.EventID,
			StoragePath: m.StoragePath,
			ContentType: contentType,
		}
		if err := s.publisher.PublishMediaUploaded(ctx, msg); err != nil {
			log.Warn().Err(err).Uint("media_id", m.ID).Msg("Failed to publish upload message, generating preview inline")
		} else {
			return
		}
	}
	if err := s.generatePreview(ctx, m.ID, m.StoragePath); err != nil {
		log.Warn().Err(err).Uint("media_id", m.ID).Msg("Inline preview generation failed")
	}
}

// HandleMediaUploaded is the worker-side entry point for queued uploads
func (s *Service) HandleMediaUploaded(ctx context.Context, msg messaging.MediaUploadedMessage) error {
	return s.generatePreview(ctx, msg.MediaID, msg.StoragePath)
}

func (s *Service) generatePreview(ctx context.Context, mediaID uint, path string) error {
	if s.previews == nil {
		return nil
	}
	previewPath, err := s.previews.Generate(path)
	if err != nil {
		s.metrics.Inc(metrics.PreviewFailures)
		return err
	}
	if previewPath == "" {
		return nil
	}
	if err := s.media.SetPreviewPath(ctx, mediaID, previewPath); err != nil {
		return err
	}
	s.metrics.Inc(metrics.PreviewsGenerated)
	return nil
}

// ListInput scopes a gallery listing
type ListInput struct {
	EventID   uint
	Principal *auth.Principal
}

// List returns an event's gallery. Guests only see approved media; the
// event's managers also see the pending queue.
func (s *Service) List(ctx context.Context, in ListInput) ([]models.Media, error) {
	ev, err := s.eventsR.GetByID(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	includePending := in.Principal != nil && in.Principal.CanManage(ev)
	return s.media.ListByEvent(ctx, ev.ID, includePending)
}

// gallerySnapshot is the cached public gallery payload
type gallerySnapshot struct {
	Event *models.Event  `json:"event"`
	Media []models.Media `json:"media"`
}

// ListBySlug returns the public gallery behind a share link. The payload is
// briefly cached: the QR code concentrates guest traffic on this one path.
func (s *Service) ListBySlug(ctx context.Context, slug string) (*models.Event, []models.Media, error) {
	key := cache.GetEventCacheKey(slug)
	if s.galleries != nil {
		var snap gallerySnapshot
		if err := s.galleries.Get(ctx, key, &snap); err == nil {
			return snap.Event, snap.Media, nil
		}
	}

	ev, err := s.eventsR.GetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	list, err := s.media.ListByEvent(ctx, ev.ID, false)
	if err != nil {
		return nil, nil, err
	}

	if s.galleries != nil {
		if err := s.galleries.Set(ctx, key, gallerySnapshot{Event: ev, Media: list}, galleryCacheTTL); err != nil {
			log.Debug().Err(err).Str("slug", slug).Msg("Failed to cache gallery")
		}
	}
	return ev, list, nil
}

// invalidateGallery drops the cached gallery so fresh uploads show up
// without waiting out the TTL.
func (s *Service) invalidateGallery(ctx context.Context, slug string) {
	if s.galleries == nil {
		return
	}
	if err := s.galleries.Delete(ctx, cache.GetEventCacheKey(slug)); err != nil {
		log.Debug().Err(err).Str("slug", slug).Msg("Failed to invalidate gallery cache")
	}
}

// Get returns one media record
func (s *Service) Get(ctx context.Context, id uint) (*models.Media, error) {
	return s.media.GetByID(ctx, id)
}

// storagePath places an upload in the event's directory, behind a pending
// segment when the event is moderated.
func storagePath(ev *models.Event, ext string) string {
	name := uuid.NewString() + ext
	if ev.RequireModeration {
		return fmt.Sprintf("%s/pending/%s", events.EventDir(ev.ID), name)
	}
	return fmt.Sprintf("%s/%s", events.EventDir(ev.ID), name)
}
