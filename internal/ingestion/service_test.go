package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/wod-ingestion-service/internal/config"
	"github.com/cyderes/wod-ingestion-service/internal/idempotency"
	"github.com/cyderes/wod-ingestion-service/internal/models"
	"github.com/cyderes/wod-ingestion-service/internal/objectstore"
	"github.com/cyderes/wod-ingestion-service/internal/transform"
)

// MockStorage is a mock implementation of the Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) PutSession(ctx context.Context, record models.DateRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *MockStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*models.IngestionStatus)
	return status, args.Error(1)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

const weekOneBody = "Monday\nSession: Clean & Jerk\nA. 5x3 @70%\nTuesday\nRest Day"

func weekOnePost() models.RawPost {
	return models.RawPost{
		ID:          101,
		Slug:        "week-1",
		PublishedAt: time.Date(2021, 1, 6, 14, 0, 0, 0, time.UTC),
		HTMLBody:    weekOneBody,
	}
}

func wpJSON(id int, slug, date, body string) map[string]any {
	return map[string]any{
		"id":      id,
		"slug":    slug,
		"date":    date,
		"title":   map[string]string{"rendered": "Weightlifting " + slug},
		"content": map[string]string{"rendered": body},
	}
}

var testLayout = config.ObjectStoreConfig{Type: "memory", RawPrefix: "raw", ArchiveLayer: "weekly"}

func testConfig(url string) config.IngestionConfig {
	return config.IngestionConfig{
		APIEndpoint:  url,
		CategoryID:   "213",
		PostsPerPage: 1,
		Timeout:      30 * time.Second,
		RetryCount:   3,
		RetryBackoff: time.Millisecond,
	}
}

func newTestService(url string, store *MockStorage) (*Service, *objectstore.MemoryStore) {
	objects := objectstore.NewMemoryStore()
	guard := idempotency.NewGuard(idempotency.NewMemoryStore())
	return NewService(testConfig(url), testLayout, store, objects, guard), objects
}

func TestService_fetchPostsOnce(t *testing.T) {
	var query, userAgent, user, pass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		userAgent = r.Header.Get("User-Agent")
		user, pass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{
			wpJSON(101, "week-1", "2021-01-06T14:00:00", "<p>Monday</p>"),
		})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Username = "coach"
	cfg.Password = "secret"
	service := NewService(cfg, testLayout, new(MockStorage), objectstore.NewMemoryStore(), nil)

	posts, err := service.fetchPostsOnce(context.Background(), 2)

	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 101, posts[0].ID)
	assert.Equal(t, "week-1", posts[0].Slug)
	assert.Equal(t, "Weightlifting week-1", posts[0].Title)
	assert.Equal(t, "<p>Monday</p>", posts[0].HTMLBody)
	assert.Equal(t, time.Date(2021, 1, 6, 14, 0, 0, 0, time.UTC), posts[0].PublishedAt)
	assert.Equal(t, "categories=213&page=2&per_page=1", query)
	assert.Contains(t, userAgent, "Mozilla/5.0")
	assert.Equal(t, "coach", user)
	assert.Equal(t, "secret", pass)
}

func TestService_fetchPostsOnce_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	service, _ := newTestService(server.URL, new(MockStorage))

	posts, err := service.fetchPostsOnce(context.Background(), 1)

	assert.Error(t, err)
	assert.Nil(t, posts)
	assert.Contains(t, err.Error(), "API returned status 500")
}

func TestService_fetchPostsOnce_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	service, _ := newTestService(server.URL, new(MockStorage))

	posts, err := service.fetchPostsOnce(context.Background(), 1)

	assert.Error(t, err)
	assert.Nil(t, posts)
	assert.Contains(t, err.Error(), "failed to unmarshal response")
}

func TestService_fetchPostsOnce_InvalidDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]any{wpJSON(7, "bad", "last tuesday", "")})
	}))
	defer server.Close()

	service, _ := newTestService(server.URL, new(MockStorage))

	_, err := service.fetchPostsOnce(context.Background(), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}

func TestService_fetchPosts_WithRetry(t *testing.T) {
	callCount := 0

	// Create mock server that fails twice then succeeds
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]any{wpJSON(1, "week-1", "2021-01-06T14:00:00", "")})
	}))
	defer server.Close()

	service, _ := newTestService(server.URL, new(MockStorage))

	posts, err := service.fetchPosts(context.Background(), 1)

	assert.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 3, callCount) // Should have retried twice
}

func TestService_fetchPosts_ExceedsRetryLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	service, _ := newTestService(server.URL, new(MockStorage))

	posts, err := service.fetchPosts(context.Background(), 1)

	assert.Error(t, err)
	assert.Nil(t, posts)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestService_ProcessPost(t *testing.T) {
	mockStorage := new(MockStorage)
	mockStorage.On("PutSession", mock.Anything, mock.AnythingOfType("models.DateRecord")).Return(nil)
	service, objects := newTestService("http://unused", mockStorage)

	report, err := service.ProcessPost(context.Background(), weekOnePost())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Records)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 0, report.Skipped)
	assert.True(t, report.Archived)
	assert.Equal(t, idempotency.Performed, report.RawDump)
	assert.Equal(t, idempotency.Performed, report.Archive)

	segmentA := "5x3 @70%"
	mockStorage.AssertCalled(t, "PutSession", mock.Anything, models.DateRecord{Date: "2021-01-04", Session: "Clean & Jerk", SegmentA: &segmentA})
	mockStorage.AssertCalled(t, "PutSession", mock.Anything, models.DateRecord{Date: "2021-01-05", Session: models.RestDay})

	raw, ok := objects.Object("raw/2021-01-06__week-1__raw.json")
	require.True(t, ok)
	assert.Equal(t, objectstore.ContentTypeJSON, raw.ContentType)
	assert.Equal(t, OpDumpPost, raw.Metadata["operation"])
	assert.Equal(t, idempotency.Key(OpDumpPost, "raw/2021-01-06__week-1__raw.json"), raw.Metadata["idempotency_key"])

	var dumped models.RawPost
	require.NoError(t, json.Unmarshal(raw.Body, &dumped))
	assert.Equal(t, weekOneBody, dumped.HTMLBody)

	archive, ok := objects.Object("weekly/2021/week_01--2021-01-04__2021-01-05.jsonl")
	require.True(t, ok)
	assert.Equal(t, objectstore.ContentTypeJSONLines, archive.ContentType)
	lines := strings.Split(strings.TrimSpace(string(archive.Body)), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"date":"2021-01-04","session":"Clean & Jerk","segment_a":"5x3 @70%","warm_up":null,"segment_b":null,"segment_c":null,"segment_d":null,"segment_e":null}`, lines[0])
	assert.JSONEq(t, `{"date":"2021-01-05","session":"Rest Day","segment_a":null,"warm_up":null,"segment_b":null,"segment_c":null,"segment_d":null,"segment_e":null}`, lines[1])
}

func TestService_ProcessPost_Reprocessing(t *testing.T) {
	mockStorage := new(MockStorage)
	mockStorage.On("PutSession", mock.Anything, mock.AnythingOfType("models.DateRecord")).Return(nil).Times(2)
	service, objects := newTestService("http://unused", mockStorage)

	_, err := service.ProcessPost(context.Background(), weekOnePost())
	require.NoError(t, err)

	report, err := service.ProcessPost(context.Background(), weekOnePost())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Written)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, idempotency.AlreadyDone, report.RawDump)
	assert.Equal(t, idempotency.AlreadyDone, report.Archive)
	assert.Equal(t, 2, objects.Len())
	mockStorage.AssertNumberOfCalls(t, "PutSession", 2)
}

func TestService_ProcessPost_ObjectPresenceSkipsWrite(t *testing.T) {
	mockStorage := new(MockStorage)
	mockStorage.On("PutSession", mock.Anything, mock.AnythingOfType("models.DateRecord")).Return(nil)
	objects := objectstore.NewMemoryStore()
	require.NoError(t, objects.Put(context.Background(), objectstore.Object{
		Key:  "raw/2021-01-06__week-1__raw.json",
		Body: []byte("{}"),
	}))
	// Without an idempotency store only the object check applies.
	service := NewService(testConfig("http://unused"), testLayout, mockStorage, objects, nil)

	report, err := service.ProcessPost(context.Background(), weekOnePost())

	require.NoError(t, err)
	assert.Equal(t, idempotency.AlreadyDone, report.RawDump)
	assert.Equal(t, idempotency.Performed, report.Archive)
	raw, _ := objects.Get(context.Background(), "raw/2021-01-06__week-1__raw.json")
	assert.Equal(t, "{}", string(raw))
}

func TestService_ProcessPost_ResumesAfterFailure(t *testing.T) {
	mockStorage := new(MockStorage)
	rest := models.DateRecord{Date: "2021-01-05", Session: models.RestDay}
	mockStorage.On("PutSession", mock.Anything, rest).Return(assert.AnError).Once()
	mockStorage.On("PutSession", mock.Anything, mock.AnythingOfType("models.DateRecord")).Return(nil)
	service, objects := newTestService("http://unused", mockStorage)

	report, err := service.ProcessPost(context.Background(), weekOnePost())

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "2021-01-05#Rest Day")
	assert.Equal(t, 1, report.Written)
	assert.False(t, report.Archived)
	assert.Equal(t, 1, objects.Len())

	report, err = service.ProcessPost(context.Background(), weekOnePost())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 1, report.Skipped)
	assert.True(t, report.Archived)
	assert.Equal(t, 2, objects.Len())
	mockStorage.AssertNumberOfCalls(t, "PutSession", 3)
}

func TestService_ProcessPost_ClaimedWriteLeavesPostIncomplete(t *testing.T) {
	mockStorage := new(MockStorage)
	mockStorage.On("PutSession", mock.Anything, mock.AnythingOfType("models.DateRecord")).Return(nil)
	idem := idempotency.NewMemoryStore()
	objects := objectstore.NewMemoryStore()
	service := NewService(testConfig("http://unused"), testLayout, mockStorage, objects, idempotency.NewGuard(idem))

	// Another attempt holds the claim on the rest day write.
	now := time.Now().UTC()
	ok, err := idem.Claim(context.Background(), models.IdempotencyRecord{
		IdempotencyKey: idempotency.Key(OpPutSession, "2021-01-05#Rest Day"),
		Status:         models.StatusPending,
		CreatedAt:      now,
		TTL:            now.Add(5 * time.Minute).Unix(),
	})
	require.NoError(t, err)
	require.True(t, ok)

	report, err := service.ProcessPost(context.Background(), weekOnePost())

	require.ErrorIs(t, err, ErrWriteInProgress)
	assert.Contains(t, err.Error(), "2021-01-05#Rest Day")
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 0, report.Skipped)
	assert.False(t, report.Archived)
	mockStorage.AssertNumberOfCalls(t, "PutSession", 1)
}

func TestService_ProcessPost_NoSessions(t *testing.T) {
	mockStorage := new(MockStorage)
	service, objects := newTestService("http://unused", mockStorage)

	post := weekOnePost()
	post.HTMLBody = "<p>We are closed over the holidays.</p>"
	report, err := service.ProcessPost(context.Background(), post)

	require.NoError(t, err)
	assert.Equal(t, 0, report.Records)
	assert.False(t, report.Archived)
	assert.Equal(t, 1, objects.Len())
	mockStorage.AssertNotCalled(t, "PutSession", mock.Anything, mock.Anything)
}

func TestService_ProcessPost_MalformedPost(t *testing.T) {
	mockStorage := new(MockStorage)
	service, _ := newTestService("http://unused", mockStorage)

	post := weekOnePost()
	post.HTMLBody = "Monday \xff\xfe"
	_, err := service.ProcessPost(context.Background(), post)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to transform post week-1")
	mockStorage.AssertNotCalled(t, "PutSession", mock.Anything, mock.Anything)
}

func TestService_ProcessPost_Cancelled(t *testing.T) {
	mockStorage := new(MockStorage)
	service, _ := newTestService("http://unused", mockStorage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := service.ProcessPost(ctx, weekOnePost())

	assert.ErrorIs(t, err, context.Canceled)
	mockStorage.AssertNotCalled(t, "PutSession", mock.Anything, mock.Anything)
}

func TestService_IngestData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]any{
			wpJSON(101, "week-1", "2021-01-06T14:00:00", weekOneBody),
		})
	}))
	defer server.Close()

	lastRun := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	mockStorage := new(MockStorage)
	mockStorage.On("GetIngestionStatus", mock.Anything).Return(&models.IngestionStatus{LastSuccessfulRun: lastRun}, nil)
	mockStorage.On("PutSession", mock.Anything, mock.AnythingOfType("models.DateRecord")).Return(nil)
	mockStorage.On("UpdateIngestionStatus", mock.Anything, mock.MatchedBy(func(s models.IngestionStatus) bool {
		return s.Status == "running" && s.LastSuccessfulRun.Equal(lastRun)
	})).Return(nil).Once()
	mockStorage.On("UpdateIngestionStatus", mock.Anything, mock.MatchedBy(func(s models.IngestionStatus) bool {
		return s.Status == "success" &&
			s.PostsProcessed == 1 &&
			s.RecordsIngested == 2 &&
			s.LastSuccessfulRun.Equal(s.LastAttempt)
	})).Return(nil).Once()

	service, objects := newTestService(server.URL, mockStorage)

	err := service.IngestData(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, objects.Len())
	mockStorage.AssertExpectations(t)
}

func TestService_IngestData_PostFailureDoesNotStopRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]any{
			wpJSON(100, "", "2021-01-06T14:00:00", "Monday"),
			wpJSON(101, "week-1", "2021-01-06T14:00:00", weekOneBody),
		})
	}))
	defer server.Close()

	mockStorage := new(MockStorage)
	mockStorage.On("GetIngestionStatus", mock.Anything).Return(nil, errors.New("no status"))
	mockStorage.On("PutSession", mock.Anything, mock.AnythingOfType("models.DateRecord")).Return(nil)
	mockStorage.On("UpdateIngestionStatus", mock.Anything, mock.MatchedBy(func(s models.IngestionStatus) bool {
		return s.Status == "running"
	})).Return(nil)
	mockStorage.On("UpdateIngestionStatus", mock.Anything, mock.MatchedBy(func(s models.IngestionStatus) bool {
		return s.Status == "failure" &&
			s.PostsProcessed == 2 &&
			s.RecordsIngested == 2 &&
			strings.Contains(s.ErrorMessage, "input stage") &&
			s.LastSuccessfulRun.IsZero()
	})).Return(nil).Once()

	service, _ := newTestService(server.URL, mockStorage)

	err := service.IngestData(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, transform.ErrMalformedInput)
	mockStorage.AssertNumberOfCalls(t, "PutSession", 2)
	mockStorage.AssertExpectations(t)
}

func TestService_IngestData_FetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	mockStorage := new(MockStorage)
	mockStorage.On("GetIngestionStatus", mock.Anything).Return(nil, nil)
	mockStorage.On("UpdateIngestionStatus", mock.Anything, mock.MatchedBy(func(s models.IngestionStatus) bool {
		return s.Status == "running"
	})).Return(nil)
	mockStorage.On("UpdateIngestionStatus", mock.Anything, mock.MatchedBy(func(s models.IngestionStatus) bool {
		return s.Status == "failure" && strings.Contains(s.ErrorMessage, "API returned status 403")
	})).Return(nil).Once()

	service, _ := newTestService(server.URL, mockStorage)

	err := service.IngestData(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch posts")
	mockStorage.AssertExpectations(t)
}

func TestService_IngestData_AlreadyRunning(t *testing.T) {
	service, _ := newTestService("http://unused", new(MockStorage))
	service.running.Lock()
	defer service.running.Unlock()

	err := service.IngestData(context.Background())

	assert.ErrorIs(t, err, ErrIngestionRunning)
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 1, false},
		{"3", 3, false},
		{"0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page=%q", tt.in), func(t *testing.T) {
			got, err := ParsePage(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
