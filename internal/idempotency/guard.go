package idempotency

import (
	"context"
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/logging"
	"github.com/cyderes/wod-ingestion-service/internal/models"
)

const (
	// DefaultTTL is how long a completed operation is remembered.
	DefaultTTL = 24 * time.Hour
	// DefaultLease is how long a pending claim blocks other attempts.
	DefaultLease = 5 * time.Minute
)

// Outcome describes what a guarded call did.
type Outcome int

const (
	// Performed means the operation ran, successfully or not.
	Performed Outcome = iota
	// AlreadyDone means a completed record was found and the operation was skipped.
	AlreadyDone
	// InProgress means another attempt holds the claim; the operation was skipped.
	InProgress
)

func (o Outcome) String() string {
	switch o {
	case Performed:
		return "performed"
	case AlreadyDone:
		return "already_done"
	case InProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Operation is the side effect a guard protects.
type Operation func(ctx context.Context) error

// Guard skips operations that already completed within the retention window.
type Guard struct {
	store Store
	ttl   time.Duration
	lease time.Duration
	now   func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithTTL sets how long completion records live.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) { g.ttl = ttl }
}

// WithLease sets how long a pending claim lives.
func WithLease(lease time.Duration) Option {
	return func(g *Guard) { g.lease = lease }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard over store. A nil store disables the checks.
func NewGuard(store Store, opts ...Option) *Guard {
	g := &Guard{
		store: store,
		ttl:   DefaultTTL,
		lease: DefaultLease,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do runs fn unless the operation identified by (operation, identifier)
// already completed. On success the completion is recorded with a fresh TTL;
// on failure nothing is recorded and fn's error is returned unchanged. Store
// failures never block fn.
func (g *Guard) Do(ctx context.Context, operation, identifier string, fn Operation) (Outcome, error) {
	key := Key(operation, identifier)
	log := logging.Ctx(ctx).With().
		Str("operation", operation).
		Str("idempotency_key", shortKey(key)).
		Logger()

	if g.completed(ctx, key) {
		log.Info().Msg("operation already completed, skipping")
		return AlreadyDone, nil
	}

	pending := g.record(key, models.StatusPending, g.lease)
	claimer, canClaim := g.store.(Claimer)
	claimed := false
	if canClaim {
		var won bool
		ok := bestEffort(ctx, "claim", shortKey(key), func(ctx context.Context) error {
			var err error
			won, err = claimer.Claim(ctx, pending)
			return err
		})
		if ok && !won {
			if g.completed(ctx, key) {
				log.Info().Msg("operation completed concurrently, skipping")
				return AlreadyDone, nil
			}
			log.Info().Msg("operation claimed by another attempt, skipping")
			return InProgress, nil
		}
		claimed = ok
	}

	if err := fn(ctx); err != nil {
		if claimed {
			// fn may have failed because ctx was cancelled; the claim must still go.
			bestEffort(context.WithoutCancel(ctx), "release", shortKey(key), func(ctx context.Context) error {
				return claimer.Release(ctx, pending)
			})
		}
		return Performed, err
	}

	if g.store != nil {
		complete := g.record(key, models.StatusComplete, g.ttl)
		if bestEffort(context.WithoutCancel(ctx), "mark complete", shortKey(key), func(ctx context.Context) error {
			return g.store.Put(ctx, complete)
		}) {
			log.Info().Dur("ttl", g.ttl).Msg("operation marked complete")
		}
	}
	return Performed, nil
}

// completed reports whether a live completion record exists for key. Lookup
// failures and unreadable records count as not completed.
func (g *Guard) completed(ctx context.Context, key string) bool {
	if g.store == nil {
		logging.Ctx(ctx).Warn().Str("idempotency_key", shortKey(key)).
			Msg("idempotency store not configured, skipping idempotency check")
		return false
	}

	var rec *models.IdempotencyRecord
	bestEffort(ctx, "lookup", shortKey(key), func(ctx context.Context) error {
		var err error
		rec, err = g.store.Get(ctx, key)
		return err
	})
	if rec == nil || rec.Expired(g.now()) {
		return false
	}
	switch rec.Status {
	case models.StatusComplete:
		return true
	case models.StatusPending:
		return false
	default:
		logging.Ctx(ctx).Warn().Str("idempotency_key", shortKey(key)).Str("status", rec.Status).
			Msg("unknown idempotency status, treating as not completed")
		return false
	}
}

func (g *Guard) record(key, status string, ttl time.Duration) models.IdempotencyRecord {
	now := g.now().UTC()
	return models.IdempotencyRecord{
		IdempotencyKey: key,
		Status:         status,
		CreatedAt:      now,
		TTL:            now.Add(ttl).Unix(),
	}
}

// bestEffort is the single path for calls against idempotency infrastructure.
// A failing call is logged and reported as false; the error never reaches the
// guarded operation's caller.
func bestEffort(ctx context.Context, action, target string, call func(context.Context) error) bool {
	if err := call(ctx); err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("action", action).
			Str("target", target).
			Msg("idempotency store call failed, allowing operation to proceed")
		return false
	}
	return true
}
