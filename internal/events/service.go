package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snapevent/internal/auth"
	"example.com/snapevent/internal/models"
	"example.com/snapevent/internal/presence"
	"example.com/snapevent/internal/qr"
	"example.com/snapevent/internal/tracing"
)

// EventStore is the persistence surface the event service needs
type EventStore interface {
	Create(ctx context.Context, ev *models.Event) error
	GetByID(ctx context.Context, id uint) (*models.Event, error)
	GetBySlug(ctx context.Context, slug string) (*models.Event, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]models.Event, error)
	ListAll(ctx context.Context) ([]models.Event, error)
	UpdateSettings(ctx context.Context, id uint, updates map[string]interface{}) error
	ApplyStatusChange(ctx context.Context, id uint, ch Change) error
	DeleteCascade(ctx context.Context, ev *models.Event, now time.Time) (*models.EventAudit, []string, error)
}

// AuditStore is the persistence surface for audit records
type AuditStore interface {
	List(ctx context.Context) ([]models.EventAudit, error)
	Delete(ctx context.Context, id uint) error
}

// Cleaner removes files after the database mutation has committed
type Cleaner interface {
	RemoveFilesAsync(paths []string)
	RemoveTreeAsync(path string)
}

// AuditIndexer pushes audit snapshots into the analytics index
type AuditIndexer interface {
	IndexEventAudit(ctx context.Context, audit *models.EventAudit) error
}

// Service implements the event lifecycle: creation, settings, the status
// state machine, presence and the delete-with-audit cascade.
type Service struct {
	store    EventStore
	audits   AuditStore
	presence presence.Tracker
	janitor  Cleaner
	indexer  AuditIndexer
	tracer   tracing.Tracer
	autoEnd  time.Duration
	baseURL  string
	now      func() time.Time
}

// NewService creates the event service. indexer may be nil when analytics
// indexing is disabled.
func NewService(
	store EventStore,
	audits AuditStore,
	tracker presence.Tracker,
	janitor Cleaner,
	indexer AuditIndexer,
	tracer tracing.Tracer,
	autoEnd time.Duration,
	baseURL string,
) *Service {
	return &Service{
		store:    store,
		audits:   audits,
		presence: tracker,
		janitor:  janitor,
		indexer:  indexer,
		tracer:   tracer,
		autoEnd:  autoEnd,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

// CreateInput carries the event-creation request
type CreateInput struct {
	Name              string
	Description       string
	ScheduledDate     *time.Time
	ScheduledStartAt  *time.Time
	RequireModeration bool
	UploadPolicy      string
	ViewPolicy        string
	AccentColor       string
}

// Create creates a scheduled event owned by the caller
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*models.Event, error) {
	ownerID := p.UserID
	ev := &models.Event{
		Name:              in.Name,
		Description:       in.Description,
		ShareSlug:         uuid.NewString(),
		Status:            models.EventStatusScheduled,
		ScheduledDate:     in.ScheduledDate,
		ScheduledStartAt:  in.ScheduledStartAt,
		OwnerID:           &ownerID,
		RequireModeration: in.RequireModeration,
		UploadPolicy:      defaultPolicy(in.UploadPolicy),
		ViewPolicy:        defaultPolicy(in.ViewPolicy),
		AccentColor:       in.AccentColor,
	}
	if err := s.store.Create(ctx, ev); err != nil {
		return nil, err
	}

	log.Info().
		Uint("event_id", ev.ID).
		Str("name", ev.Name).
		Uint("owner_id", ownerID).
		Msg("Event created")
	return ev, nil
}

func defaultPolicy(p string) string {
	if p == "" {
		return "everyone"
	}
	return p
}

// Get returns a single event
func (s *Service) Get(ctx context.Context, id uint) (*models.Event, error) {
	return s.store.GetByID(ctx, id)
}

// GetBySlug returns the event behind a share link
func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Event, error) {
	return s.store.GetBySlug(ctx, slug)
}

// List returns the caller's events; root sees everything
func (s *Service) List(ctx context.Context, p auth.Principal) ([]models.Event, error) {
	if p.IsRoot() {
		return s.store.ListAll(ctx)
	}
	return s.store.ListByOwner(ctx, p.UserID)
}

// ShareURL returns the public gallery link for an event
func (s *Service) ShareURL(ev *models.Event) string {
	return qr.ShareURL(s.baseURL, ev.ShareSlug)
}

// QRCode renders the event's share link as a PNG QR image
func (s *Service) QRCode(ev *models.Event) ([]byte, error) {
	return qr.PNG(s.ShareURL(ev), qr.DefaultSize)
}

// ChangeStatus applies a state-machine transition requested through the API
func (s *Service) ChangeStatus(ctx context.Context, p auth.Principal, id uint, target string) (*models.Event, error) {
	txn := s.tracer.StartTransaction("event-status-change")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "event_id", id)
	s.tracer.AddAttribute(txn, "target_status", target)

	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanManage(ev) {
		return nil, auth.ErrForbidden
	}

	st, err := ParseStatus(target)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ch, err := Transition(Snapshot{
		Status:           ev.Status,
		ScheduledStartAt: ev.ScheduledStartAt,
		AutoEndAt:        ev.AutoEndAt,
	}, st, now, s.autoEnd)
	if err != nil {
		return nil, err
	}

	if err := s.store.ApplyStatusChange(ctx, ev.ID, ch); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	s.applyChangeLocally(ev, ch)

	if ch.ClearPresence {
		if err := s.presence.Clear(ctx, ev.ID); err != nil {
			log.Warn().Err(err).Uint("event_id", ev.ID).Msg("Failed to clear presence registry")
		}
	}

	log.Info().
		Uint("event_id", ev.ID).
		Str("status", string(ch.Status)).
		Msg("Event status changed")
	return ev, nil
}

func (s *Service) applyChangeLocally(ev *models.Event, ch Change) {
	ev.Status = ch.Status
	if ch.ScheduledStartAt != nil {
		ev.ScheduledStartAt = ch.ScheduledStartAt
	}
	if ch.AutoEndAt != nil {
		ev.AutoEndAt = ch.AutoEndAt
	}
}

// UpdateInput carries a settings patch; nil fields are left untouched
type UpdateInput struct {
	Name              *string
	Description       *string
	ScheduledDate     *time.Time
	ScheduledStartAt  *time.Time
	RequireModeration *bool
	UploadPolicy      *string
	ViewPolicy        *string
	AccentColor       *string
	BackgroundPath    *string
}

// UpdateSettings patches event settings. A changed start time recomputes the
// auto-end timestamp with the same rules the live transition uses.
func (s *Service) UpdateSettings(ctx context.Context, p auth.Principal, id uint, in UpdateInput) (*models.Event, error) {
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanManage(ev) {
		return nil, auth.ErrForbidden
	}
	if ev.Status == models.EventStatusEnded {
		return nil, errors.Wrap(ErrEventEnded, "settings are frozen")
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.ScheduledDate != nil {
		updates["scheduled_date"] = in.ScheduledDate
	}
	if in.RequireModeration != nil {
		updates["require_moderation"] = *in.RequireModeration
	}
	if in.UploadPolicy != nil {
		updates["upload_policy"] = *in.UploadPolicy
	}
	if in.ViewPolicy != nil {
		updates["view_policy"] = *in.ViewPolicy
	}
	if in.AccentColor != nil {
		updates["accent_color"] = *in.AccentColor
	}
	if in.BackgroundPath != nil {
		updates["background_path"] = *in.BackgroundPath
	}
	if in.ScheduledStartAt != nil {
		start := *in.ScheduledStartAt
		end := NextAutoEnd(ev.AutoEndAt, start, s.now(), s.autoEnd)
		updates["scheduled_start_at"] = &start
		updates["auto_end_at"] = &end
	}
	if len(updates) == 0 {
		return ev, nil
	}

	if err := s.store.UpdateSettings(ctx, ev.ID, updates); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, ev.ID)
}

// Delete removes an event with all its media, writes the audit snapshot and
// schedules best-effort file cleanup after the transaction commits.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uint) error {
	txn := s.tracer.StartTransaction("event-delete")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "event_id", id)

	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !p.CanManage(ev) {
		return auth.ErrForbidden
	}

	audit, paths, err := s.store.DeleteCascade(ctx, ev, s.now())
	if err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	if err := s.presence.Clear(ctx, ev.ID); err != nil {
		log.Warn().Err(err).Uint("event_id", ev.ID).Msg("Failed to clear presence registry")
	}

	if s.indexer != nil {
		if err := s.indexer.IndexEventAudit(ctx, audit); err != nil {
			log.Warn().Err(err).Uint("event_id", ev.ID).Msg("Failed to index audit record")
		}
	}

	// Files go after the commit; the janitor retries and dead-letters.
	s.janitor.RemoveFilesAsync(paths)
	s.janitor.RemoveTreeAsync(EventDir(ev.ID))

	log.Info().
		Uint("event_id", ev.ID).
		Int("total_photos", audit.TotalPhotosAtDelete).
		Msg("Event deleted and audited")
	return nil
}

// Heartbeat registers a viewing client. Ended events no longer track
// presence and always report zero.
func (s *Service) Heartbeat(ctx context.Context, id uint, clientID string) (int, error) {
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if ev.Status == models.EventStatusEnded {
		return 0, nil
	}
	return s.presence.Heartbeat(ctx, ev.ID, clientID)
}

// Leave removes a viewing client immediately
func (s *Service) Leave(ctx context.Context, id uint, clientID string) (int, error) {
	return s.presence.Leave(ctx, id, clientID)
}

// PresenceCount returns the current live count for one event
func (s *Service) PresenceCount(ctx context.Context, id uint) (int, error) {
	return s.presence.Count(ctx, id)
}

// PresenceSnapshot returns live counts for every event with viewers
func (s *Service) PresenceSnapshot(ctx context.Context) (map[uint]int, error) {
	return s.presence.Snapshot(ctx)
}

// ListAudits returns the audit trail; root only
func (s *Service) ListAudits(ctx context.Context, p auth.Principal) ([]models.EventAudit, error) {
	if !p.IsRoot() {
		return nil, auth.ErrForbidden
	}
	return s.audits.List(ctx)
}

// DeleteAudit removes an audit record; root only
func (s *Service) DeleteAudit(ctx context.Context, p auth.Principal, id uint) error {
	if !p.IsRoot() {
		return auth.ErrForbidden
	}
	return s.audits.Delete(ctx, id)
}

// EventDir is the storage directory holding all of an event's files
func EventDir(eventID uint) string {
	return fmt.Sprintf("events/%d", eventID)
}
