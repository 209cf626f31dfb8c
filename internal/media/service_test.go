package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/snapevent/internal/auth"
	"example.com/snapevent/internal/messaging"
	"example.com/snapevent/internal/metrics"
	"example.com/snapevent/internal/models"
	"example.com/snapevent/internal/storage"
	"example.com/snapevent/internal/tracing"
)

type MockEventStore struct {
	mock.Mock
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

func (m *MockEventStore) IncrementPhotoCount(ctx context.Context, id uint, delta int) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

type MockMediaStore struct {
	mock.Mock
}

func (m *MockMediaStore) Create(ctx context.Context, media *models.Media) error {
	args := m.Called(ctx, media)
	return args.Error(0)
}

func (m *MockMediaStore) GetByID(ctx context.Context, id uint) (*models.Media, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Media), args.Error(1)
}

func (m *MockMediaStore) ListByEvent(ctx context.Context, eventID uint, includePending bool) ([]models.Media, error) {
	args := m.Called(ctx, eventID, includePending)
	return args.Get(0).([]models.Media), args.Error(1)
}

func (m *MockMediaStore) SetPreviewPath(ctx context.Context, id uint, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishMediaUploaded(ctx context.Context, msg messaging.MediaUploadedMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func newTestService(t *testing.T, eventsR *MockEventStore, mediaStore *MockMediaStore, publisher *MockPublisher) *Service {
	t.Helper()
	files, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	svc := &Service{
		eventsR: eventsR,
		media:   mediaStore,
		files:   files,
		tracer:  tracing.Disabled(),
		metrics: metrics.NewMetrics(),
		now:     time.Now,
	}
	if publisher != nil {
		svc.publisher = publisher
	}
	return svc
}

func liveEvent(id uint, moderated bool) *models.Event {
	owner := uint(3)
	return &models.Event{
		ID:                id,
		OwnerID:           &owner,
		Status:            models.EventStatusLive,
		ShareSlug:         "slug-7",
		RequireModeration: moderated,
	}
}

func TestUploadToLiveEvent(t *testing.T) {
	ev := liveEvent(7, false)

	eventsR := new(MockEventStore)
	eventsR.On("GetBySlug", mock.Anything, "slug-7").Return(ev, nil)
	eventsR.On("IncrementPhotoCount", mock.Anything, uint(7), 1).Return(nil)

	mediaStore := new(MockMediaStore)
	mediaStore.On("Create", mock.Anything, mock.AnythingOfType("*models.Media")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Media).ID = 42
		}).
		Return(nil)

	publisher := new(MockPublisher)
	publisher.On("PublishMediaUploaded", mock.Anything, mock.AnythingOfType("messaging.MediaUploadedMessage")).Return(nil)

	svc := newTestService(t, eventsR, mediaStore, publisher)

	m, err := svc.Upload(context.Background(), UploadInput{
		Slug:     "slug-7",
		Filename: "party.jpg",
		Body:     strings.NewReader("jpeg bytes"),
	})
	require.NoError(t, err)
	require.Equal(t, uint(42), m.ID)
	require.Equal(t, models.MediaStatusApproved, m.Status)
	require.True(t, strings.HasPrefix(m.StoragePath, "events/7/"))
	require.NotContains(t, m.StoragePath, "pending")
	require.True(t, svc.files.Exists(m.StoragePath))
	eventsR.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestUploadModeratedEventParksPending(t *testing.T) {
	ev := liveEvent(7, true)

	eventsR := new(MockEventStore)
	eventsR.On("GetBySlug", mock.Anything, "slug-7").Return(ev, nil)
	eventsR.On("IncrementPhotoCount", mock.Anything, uint(7), 1).Return(nil)

	mediaStore := new(MockMediaStore)
	mediaStore.On("Create", mock.Anything, mock.AnythingOfType("*models.Media")).Return(nil)

	svc := newTestService(t, eventsR, mediaStore, nil)

	m, err := svc.Upload(context.Background(), UploadInput{
		Slug:     "slug-7",
		Filename: "party.mp4",
		Body:     strings.NewReader("video bytes"),
	})
	require.NoError(t, err)
	require.Equal(t, models.MediaStatusPending, m.Status)
	require.Contains(t, m.StoragePath, "/pending/")
}

func TestUploadRejectedWhenNotLive(t *testing.T) {
	for _, status := range []models.EventStatus{
		models.EventStatusScheduled, models.EventStatusPaused, models.EventStatusEnded,
	} {
		ev := liveEvent(7, false)
		ev.Status = status

		eventsR := new(MockEventStore)
		eventsR.On("GetBySlug", mock.Anything, "slug-7").Return(ev, nil)

		mediaStore := new(MockMediaStore)
		svc := newTestService(t, eventsR, mediaStore, nil)

		_, err := svc.Upload(context.Background(), UploadInput{
			Slug:     "slug-7",
			Filename: "party.jpg",
			Body:     strings.NewReader("x"),
		})
		require.True(t, errors.Is(err, ErrEventNotLive), "status %s", status)
		mediaStore.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	}
}

func TestUploadClosedByPolicy(t *testing.T) {
	ev := liveEvent(7, false)
	ev.UploadPolicy = "organizer"

	eventsR := new(MockEventStore)
	eventsR.On("GetBySlug", mock.Anything, "slug-7").Return(ev, nil)

	mediaStore := new(MockMediaStore)
	svc := newTestService(t, eventsR, mediaStore, nil)

	_, err := svc.Upload(context.Background(), UploadInput{
		Slug:     "slug-7",
		Filename: "party.jpg",
		Body:     strings.NewReader("x"),
	})
	require.True(t, errors.Is(err, ErrUploadsClosed))
	mediaStore.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	eventsR := new(MockEventStore)
	eventsR.On("GetBySlug", mock.Anything, "slug-7").Return(liveEvent(7, false), nil)

	svc := newTestService(t, eventsR, new(MockMediaStore), nil)

	_, err := svc.Upload(context.Background(), UploadInput{
		Slug:     "slug-7",
		Filename: "malware.exe",
		Body:     strings.NewReader("x"),
	})
	require.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestUploadRemovesFileWhenRowFails(t *testing.T) {
	eventsR := new(MockEventStore)
	eventsR.On("GetBySlug", mock.Anything, "slug-7").Return(liveEvent(7, false), nil)

	mediaStore := new(MockMediaStore)
	mediaStore.On("Create", mock.Anything, mock.AnythingOfType("*models.Media")).
		Return(errors.New("db down"))

	svc := newTestService(t, eventsR, mediaStore, nil)

	_, err := svc.Upload(context.Background(), UploadInput{
		Slug:     "slug-7",
		Filename: "party.jpg",
		Body:     strings.NewReader("x"),
	})
	require.Error(t, err)
	eventsR.AssertNotCalled(t, "IncrementPhotoCount", mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadInvalidatesGalleryCache(t *testing.T) {
	ev := liveEvent(7, false)

	eventsR := new(MockEventStore)
	eventsR.On("GetBySlug", mock.Anything, "slug-7").Return(ev, nil)
	eventsR.On("IncrementPhotoCount", mock.Anything, uint(7), 1).Return(nil)

	mediaStore := new(MockMediaStore)
	mediaStore.On("Create", mock.Anything, mock.AnythingOfType("*models.Media")).Return(nil)

	cacheMock := new(MockCache)
	cacheMock.On("Delete", mock.Anything, "event:slug-7").Return(nil)

	svc := newTestService(t, eventsR, mediaStore, nil)
	svc.galleries = cacheMock

	_, err := svc.Upload(context.Background(), UploadInput{
		Slug:     "slug-7",
		Filename: "party.jpg",
		Body:     strings.NewReader("x"),
	})
	require.NoError(t, err)
	cacheMock.AssertExpectations(t)
}

func TestListBySlugServesFromCache(t *testing.T) {
	cacheMock := new(MockCache)
	cacheMock.On("Get", mock.Anything, "event:slug-7", mock.Anything).
		Run(func(args mock.Arguments) {
			snap := args.Get(2).(*gallerySnapshot)
			snap.Event = liveEvent(7, false)
			snap.Media = []models.Media{{ID: 1}}
		}).
		Return(nil)

	eventsR := new(MockEventStore)
	svc := newTestService(t, eventsR, new(MockMediaStore), nil)
	svc.galleries = cacheMock

	ev, list, err := svc.ListBySlug(context.Background(), "slug-7")
	require.NoError(t, err)
	require.Equal(t, uint(7), ev.ID)
	require.Len(t, list, 1)
	eventsR.AssertNotCalled(t, "GetBySlug", mock.Anything, mock.Anything)
}

func TestListBySlugCachesOnMiss(t *testing.T) {
	eventsR := new(MockEventStore)
	eventsR.On("GetBySlug", mock.Anything, "slug-7").Return(liveEvent(7, false), nil)

	mediaStore := new(MockMediaStore)
	mediaStore.On("ListByEvent", mock.Anything, uint(7), false).Return([]models.Media{{ID: 1}}, nil)

	cacheMock := new(MockCache)
	cacheMock.On("Get", mock.Anything, "event:slug-7", mock.Anything).Return(errors.New("cache miss"))
	cacheMock.On("Set", mock.Anything, "event:slug-7", mock.AnythingOfType("media.gallerySnapshot"), galleryCacheTTL).Return(nil)

	svc := newTestService(t, eventsR, mediaStore, nil)
	svc.galleries = cacheMock

	_, list, err := svc.ListBySlug(context.Background(), "slug-7")
	require.NoError(t, err)
	require.Len(t, list, 1)
	cacheMock.AssertExpectations(t)
}

func TestListScopesPendingToManagers(t *testing.T) {
	ev := liveEvent(7, true)

	eventsR := new(MockEventStore)
	eventsR.On("GetByID", mock.Anything, uint(7)).Return(ev, nil)

	mediaStore := new(MockMediaStore)
	mediaStore.On("ListByEvent", mock.Anything, uint(7), true).Return([]models.Media{{ID: 1}, {ID: 2}}, nil)
	mediaStore.On("ListByEvent", mock.Anything, uint(7), false).Return([]models.Media{{ID: 1}}, nil)

	svc := newTestService(t, eventsR, mediaStore, nil)

	manager := auth.Principal{UserID: 3, Role: models.RoleAdmin}
	list, err := svc.List(context.Background(), ListInput{EventID: 7, Principal: &manager})
	require.NoError(t, err)
	require.Len(t, list, 2)

	stranger := auth.Principal{UserID: 99, Role: models.RoleAdmin}
	list, err = svc.List(context.Background(), ListInput{EventID: 7, Principal: &stranger})
	require.NoError(t, err)
	require.Len(t, list, 1)
}
