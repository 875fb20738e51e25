package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/config"
	"github.com/cyderes/wod-ingestion-service/internal/idempotency"
	"github.com/cyderes/wod-ingestion-service/internal/logging"
	"github.com/cyderes/wod-ingestion-service/internal/models"
	"github.com/cyderes/wod-ingestion-service/internal/objectstore"
	"github.com/cyderes/wod-ingestion-service/internal/storage"
	"github.com/cyderes/wod-ingestion-service/internal/transform"
)

var (
	// ErrIngestionRunning is returned when a run is requested while another is in flight.
	ErrIngestionRunning = errors.New("ingestion already running")
	// ErrWriteInProgress is returned when another attempt holds the claim on a
	// write; the post stays incomplete and the next run retries it.
	ErrWriteInProgress = errors.New("write claimed by another attempt")
)

// Service handles data ingestion from the blog API
type Service struct {
	config      config.IngestionConfig
	layout      config.ObjectStoreConfig
	storage     storage.Storage
	objects     objectstore.ObjectStore
	guard       *idempotency.Guard
	objectGuard *idempotency.ObjectGuard
	httpClient  *http.Client
	running     sync.Mutex
	now         func() time.Time
}

// PostReport summarizes what processing one post did.
type PostReport struct {
	Slug     string
	Records  int
	Written  int
	Skipped  int
	RawDump  idempotency.Outcome
	Archive  idempotency.Outcome
	Archived bool
}

// NewService creates a new ingestion service
func NewService(
	cfg config.IngestionConfig,
	layout config.ObjectStoreConfig,
	store storage.Storage,
	objects objectstore.ObjectStore,
	guard *idempotency.Guard,
) *Service {
	if guard == nil {
		guard = idempotency.NewGuard(nil)
	}
	return &Service{
		config:      cfg,
		layout:      layout,
		storage:     store,
		objects:     objects,
		guard:       guard,
		objectGuard: idempotency.NewObjectGuard(objects),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

// Start begins the ingestion process
func (s *Service) Start(ctx context.Context) error {
	log := logging.Component("ingestion")

	// Perform initial ingestion
	if err := s.IngestData(ctx); err != nil {
		return fmt.Errorf("initial ingestion failed: %w", err)
	}

	// Set up periodic ingestion
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.IngestData(ctx); err != nil {
				// Log error but don't stop the service
				log.Error().Err(err).Msg("ingestion run failed")
			}
		}
	}
}

// IngestData fetches the first page of posts and processes each one.
func (s *Service) IngestData(ctx context.Context) error {
	return s.IngestPage(ctx, 1)
}

// IngestPage fetches one page of posts and processes each one. A failing
// post does not stop the others; all post errors are returned joined.
func (s *Service) IngestPage(ctx context.Context, page int) error {
	if !s.running.TryLock() {
		return ErrIngestionRunning
	}
	defer s.running.Unlock()

	ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())
	log := logging.Ctx(ctx).With().Str("component", "ingestion").Int("page", page).Logger()
	started := s.now().UTC()

	status := models.IngestionStatus{LastAttempt: started, Status: "running"}
	if prev, err := s.storage.GetIngestionStatus(ctx); err == nil && prev != nil {
		status.LastSuccessfulRun = prev.LastSuccessfulRun
	}
	s.saveStatus(ctx, status)

	posts, err := s.fetchPosts(ctx, page)
	if err != nil {
		err = fmt.Errorf("failed to fetch posts: %w", err)
		s.finish(ctx, status, err)
		return err
	}
	log.Info().Int("posts", len(posts)).Msg("fetched posts")

	var errs []error
	for _, post := range posts {
		report, err := s.ProcessPost(ctx, post)
		status.PostsProcessed++
		status.RecordsIngested += report.Written
		status.RecordsSkipped += report.Skipped
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	err = errors.Join(errs...)
	s.finish(ctx, status, err)
	if err != nil {
		return err
	}

	log.Info().
		Int("posts", status.PostsProcessed).
		Int("records_ingested", status.RecordsIngested).
		Int("records_skipped", status.RecordsSkipped).
		Dur("duration", s.now().Sub(started)).
		Msg("ingestion run complete")
	return nil
}

// ProcessPost dumps the raw post, segments it into date records, stores
// each record and archives the week. Every write is idempotent, so
// reprocessing a post only performs what previously failed.
func (s *Service) ProcessPost(ctx context.Context, post models.RawPost) (PostReport, error) {
	report := PostReport{Slug: post.Slug}
	log := logging.Ctx(ctx).With().Str("slug", post.Slug).Int("post_id", post.ID).Logger()

	outcome, err := s.dumpRawPost(ctx, post)
	report.RawDump = outcome
	if err == nil {
		err = settled(outcome)
	}
	if err != nil {
		return report, fmt.Errorf("failed to dump post %s: %w", post.Slug, err)
	}

	records, err := transform.Run(post)
	if err != nil {
		return report, fmt.Errorf("failed to transform post %s: %w", post.Slug, err)
	}
	report.Records = len(records)
	if len(records) == 0 {
		log.Warn().Msg("post contains no sessions")
		return report, nil
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := s.guard.Do(ctx, OpPutSession, record.Key(), func(ctx context.Context) error {
			return s.storage.PutSession(ctx, record)
		})
		if err == nil {
			err = settled(outcome)
		}
		if err != nil {
			return report, fmt.Errorf("failed to store session %s: %w", record.Key(), err)
		}
		if outcome == idempotency.Performed {
			report.Written++
		} else {
			report.Skipped++
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	outcome, err = s.archiveWeek(ctx, records)
	report.Archive = outcome
	if err == nil {
		err = settled(outcome)
	}
	if err != nil {
		return report, fmt.Errorf("failed to archive post %s: %w", post.Slug, err)
	}
	report.Archived = true

	log.Info().
		Int("records", report.Records).
		Int("written", report.Written).
		Int("skipped", report.Skipped).
		Stringer("raw_dump", report.RawDump).
		Stringer("archive", report.Archive).
		Msg("post processed")
	return report, nil
}

// settled reports an error for outcomes that left the write undone.
func settled(outcome idempotency.Outcome) error {
	if outcome == idempotency.InProgress {
		return ErrWriteInProgress
	}
	return nil
}

func (s *Service) dumpRawPost(ctx context.Context, post models.RawPost) (idempotency.Outcome, error) {
	key := RawPostPath(s.layout.RawPrefix, post)
	return s.guardedWrite(ctx, OpDumpPost, key, func() (objectstore.Object, error) {
		body, err := json.Marshal(post)
		if err != nil {
			return objectstore.Object{}, err
		}
		return objectstore.Object{Key: key, Body: body, ContentType: objectstore.ContentTypeJSON}, nil
	})
}

func (s *Service) archiveWeek(ctx context.Context, records []models.DateRecord) (idempotency.Outcome, error) {
	key, err := ArchivePath(s.layout.ArchiveLayer, records)
	if err != nil {
		return idempotency.Performed, err
	}
	return s.guardedWrite(ctx, OpSaveSessions, key, func() (objectstore.Object, error) {
		body, err := objectstore.EncodeJSONLines(records)
		if err != nil {
			return objectstore.Object{}, err
		}
		return objectstore.Object{Key: key, Body: body, ContentType: objectstore.ContentTypeJSONLines}, nil
	})
}

// guardedWrite writes the object built by build unless the operation is
// recorded as done or the object already exists.
func (s *Service) guardedWrite(ctx context.Context, operation, key string, build func() (objectstore.Object, error)) (idempotency.Outcome, error) {
	outcome := idempotency.Performed
	guardOutcome, err := s.guard.Do(ctx, operation, key, func(ctx context.Context) error {
		var err error
		outcome, err = s.objectGuard.Do(ctx, key, func(ctx context.Context) error {
			obj, err := build()
			if err != nil {
				return err
			}
			obj.Metadata = map[string]string{
				"idempotency_key": idempotency.Key(operation, key),
				"operation":       operation,
			}
			return s.objects.Put(ctx, obj)
		})
		return err
	})
	if guardOutcome != idempotency.Performed {
		return guardOutcome, err
	}
	return outcome, err
}

func (s *Service) finish(ctx context.Context, status models.IngestionStatus, err error) {
	if err != nil {
		status.Status = "failure"
		status.ErrorMessage = err.Error()
	} else {
		status.Status = "success"
		status.LastSuccessfulRun = status.LastAttempt
	}
	s.saveStatus(ctx, status)
}

func (s *Service) saveStatus(ctx context.Context, status models.IngestionStatus) {
	if err := s.storage.UpdateIngestionStatus(context.WithoutCancel(ctx), status); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("status", status.Status).Msg("failed to update ingestion status")
	}
}

// Status returns the most recent ingestion status.
func (s *Service) Status(ctx context.Context) (*models.IngestionStatus, error) {
	return s.storage.GetIngestionStatus(ctx)
}

// ParsePage parses a page query value, defaulting to 1.
func ParsePage(v string) (int, error) {
	if v == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(v)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid page %q", v)
	}
	return page, nil
}
