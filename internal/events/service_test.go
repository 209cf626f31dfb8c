package events

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/snapevent/internal/auth"
	"example.com/snapevent/internal/models"
	"example.com/snapevent/internal/presence"
	"example.com/snapevent/internal/tracing"
)

// Mock repositories for testing
type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) Create(ctx context.Context, ev *models.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockEventStore) GetByID(ctx context.Context, id uint) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockEventStore) GetBySlug(ctx context.Context, slug string) (*models.Event, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockEventStore) ListByOwner(ctx context.Context, ownerID uint) ([]models.Event, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockEventStore) ListAll(ctx context.Context) ([]models.Event, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockEventStore) UpdateSettings(ctx context.Context, id uint, updates map[string]interface{}) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

func (m *MockEventStore) ApplyStatusChange(ctx context.Context, id uint, ch Change) error {
	args := m.Called(ctx, id, ch)
	return args.Error(0)
}

func (m *MockEventStore) DeleteCascade(ctx context.Context, ev *models.Event, now time.Time) (*models.EventAudit, []string, error) {
	args := m.Called(ctx, ev, now)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.EventAudit), args.Get(1).([]string), args.Error(2)
}

type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) List(ctx context.Context) ([]models.EventAudit, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.EventAudit), args.Error(1)
}

func (m *MockAuditStore) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockCleaner struct {
	mock.Mock
}

func (m *MockCleaner) RemoveFilesAsync(paths []string) {
	m.Called(paths)
}

func (m *MockCleaner) RemoveTreeAsync(path string) {
	m.Called(path)
}

func newTestService(store *MockEventStore, audits *MockAuditStore, janitor *MockCleaner, now time.Time) *Service {
	return &Service{
		store:    store,
		audits:   audits,
		presence: presence.NewMemoryTracker(time.Minute),
		janitor:  janitor,
		tracer:   tracing.Disabled(),
		autoEnd:  3 * time.Minute,
		baseURL:  "https://snapevent.example",
		now:      func() time.Time { return now },
	}
}

func admin(id uint) auth.Principal {
	return auth.Principal{UserID: id, Role: models.RoleAdmin}
}

func TestCreateEvent(t *testing.T) {
	store := new(MockEventStore)
	store.On("Create", mock.Anything, mock.AnythingOfType("*models.Event")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Event).ID = 7
		}).
		Return(nil)

	svc := newTestService(store, nil, nil, time.Now())

	ev, err := svc.Create(context.Background(), admin(3), CreateInput{Name: "Wedding"})
	require.NoError(t, err)
	require.Equal(t, uint(7), ev.ID)
	require.Equal(t, models.EventStatusScheduled, ev.Status)
	require.NotEmpty(t, ev.ShareSlug)
	require.Equal(t, uint(3), *ev.OwnerID)
	require.Equal(t, "everyone", ev.UploadPolicy)
	store.AssertExpectations(t)
}

func TestChangeStatusGoLive(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	owner := uint(3)
	ev := &models.Event{ID: 7, Status: models.EventStatusScheduled, OwnerID: &owner}

	store := new(MockEventStore)
	store.On("GetByID", mock.Anything, uint(7)).Return(ev, nil)
	store.On("ApplyStatusChange", mock.Anything, uint(7), mock.MatchedBy(func(ch Change) bool {
		return ch.Status == models.EventStatusLive &&
			ch.AutoEndAt != nil && ch.AutoEndAt.Equal(now.Add(3*time.Minute))
	})).Return(nil)

	svc := newTestService(store, nil, nil, now)

	updated, err := svc.ChangeStatus(context.Background(), admin(owner), 7, "live")
	require.NoError(t, err)
	require.Equal(t, models.EventStatusLive, updated.Status)
	store.AssertExpectations(t)
}

func TestChangeStatusForbiddenForOtherAdmin(t *testing.T) {
	owner := uint(3)
	ev := &models.Event{ID: 7, Status: models.EventStatusScheduled, OwnerID: &owner}

	store := new(MockEventStore)
	store.On("GetByID", mock.Anything, uint(7)).Return(ev, nil)

	svc := newTestService(store, nil, nil, time.Now())

	_, err := svc.ChangeStatus(context.Background(), admin(99), 7, "live")
	require.True(t, errors.Is(err, auth.ErrForbidden))
	store.AssertNotCalled(t, "ApplyStatusChange", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangeStatusRootBypassesOwnership(t *testing.T) {
	owner := uint(3)
	ev := &models.Event{ID: 7, Status: models.EventStatusLive, OwnerID: &owner}

	store := new(MockEventStore)
	store.On("GetByID", mock.Anything, uint(7)).Return(ev, nil)
	store.On("ApplyStatusChange", mock.Anything, uint(7), mock.Anything).Return(nil)

	svc := newTestService(store, nil, nil, time.Now())

	_, err := svc.ChangeStatus(context.Background(), auth.Principal{UserID: 1, Role: models.RoleRoot}, 7, "paused")
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestChangeStatusEndClearsPresence(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	owner := uint(3)
	ev := &models.Event{ID: 7, Status: models.EventStatusLive, OwnerID: &owner}

	store := new(MockEventStore)
	store.On("GetByID", mock.Anything, uint(7)).Return(ev, nil)
	store.On("ApplyStatusChange", mock.Anything, uint(7), mock.Anything).Return(nil)

	svc := newTestService(store, nil, nil, now)

	_, err := svc.presence.Heartbeat(context.Background(), 7, "guest-1")
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), admin(owner), 7, "ended")
	require.NoError(t, err)

	count, err := svc.presence.Count(context.Background(), 7)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestUpdateSettingsFrozenAfterEnd(t *testing.T) {
	owner := uint(3)
	ev := &models.Event{ID: 7, Status: models.EventStatusEnded, OwnerID: &owner}

	store := new(MockEventStore)
	store.On("GetByID", mock.Anything, uint(7)).Return(ev, nil)

	svc := newTestService(store, nil, nil, time.Now())

	name := "New name"
	_, err := svc.UpdateSettings(context.Background(), admin(owner), 7, UpdateInput{Name: &name})
	require.True(t, errors.Is(err, ErrEventEnded))
	store.AssertNotCalled(t, "UpdateSettings", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateSettingsStartChangeRecomputesAutoEnd(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	owner := uint(3)
	ev := &models.Event{ID: 7, Status: models.EventStatusScheduled, OwnerID: &owner}

	newStart := now.Add(time.Hour)
	store := new(MockEventStore)
	store.On("GetByID", mock.Anything, uint(7)).Return(ev, nil)
	store.On("UpdateSettings", mock.Anything, uint(7), mock.MatchedBy(func(updates map[string]interface{}) bool {
		end, ok := updates["auto_end_at"].(*time.Time)
		return ok && end.Equal(newStart.Add(3*time.Minute))
	})).Return(nil)

	svc := newTestService(store, nil, nil, now)

	_, err := svc.UpdateSettings(context.Background(), admin(owner), 7, UpdateInput{ScheduledStartAt: &newStart})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestDeleteEventAuditsAndCleansUp(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	owner := uint(3)
	ev := &models.Event{ID: 7, Status: models.EventStatusEnded, OwnerID: &owner, DeletedPhotoCount: 2}

	audit := &models.EventAudit{EventID: 7, TotalPhotosAtDelete: 5, DeletedPhotosCumulative: 2}
	paths := []string{"events/7/a.jpg", "events/7/b.jpg"}

	store := new(MockEventStore)
	store.On("GetByID", mock.Anything, uint(7)).Return(ev, nil)
	store.On("DeleteCascade", mock.Anything, ev, now).Return(audit, paths, nil)

	janitor := new(MockCleaner)
	janitor.On("RemoveFilesAsync", paths).Return()
	janitor.On("RemoveTreeAsync", "events/7").Return()

	svc := newTestService(store, nil, janitor, now)

	require.NoError(t, svc.Delete(context.Background(), admin(owner), 7))
	store.AssertExpectations(t)
	janitor.AssertExpectations(t)
}

func TestHeartbeatEndedEventReportsZero(t *testing.T) {
	ev := &models.Event{ID: 7, Status: models.EventStatusEnded}

	store := new(MockEventStore)
	store.On("GetByID", mock.Anything, uint(7)).Return(ev, nil)

	svc := newTestService(store, nil, nil, time.Now())

	count, err := svc.Heartbeat(context.Background(), 7, "guest-1")
	require.NoError(t, err)
	require.Zero(t, count)

	registered, err := svc.presence.Count(context.Background(), 7)
	require.NoError(t, err)
	require.Zero(t, registered)
}

func TestListAuditsRootOnly(t *testing.T) {
	audits := new(MockAuditStore)
	audits.On("List", mock.Anything).Return([]models.EventAudit{{EventID: 7}}, nil)

	svc := newTestService(new(MockEventStore), audits, nil, time.Now())

	_, err := svc.ListAudits(context.Background(), admin(3))
	require.True(t, errors.Is(err, auth.ErrForbidden))

	list, err := svc.ListAudits(context.Background(), auth.Principal{UserID: 1, Role: models.RoleRoot})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestShareURLAndQRCode(t *testing.T) {
	svc := newTestService(new(MockEventStore), nil, nil, time.Now())
	ev := &models.Event{ID: 7, ShareSlug: "abc-123"}

	require.Equal(t, "https://snapevent.example/e/abc-123", svc.ShareURL(ev))

	png, err := svc.QRCode(ev)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	// PNG magic bytes
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
