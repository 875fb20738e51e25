package idempotency

import (
	"context"

	"github.com/cyderes/wod-ingestion-service/internal/logging"
)

// ObjectChecker reports whether an object exists in an object store.
type ObjectChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// ObjectGuard treats the presence of the target object as proof that the
// operation producing it already ran.
type ObjectGuard struct {
	objects ObjectChecker
}

// NewObjectGuard creates a guard backed by object existence checks.
func NewObjectGuard(objects ObjectChecker) *ObjectGuard {
	return &ObjectGuard{objects: objects}
}

// Do runs fn unless objectKey already exists. A failed existence check lets fn run.
func (g *ObjectGuard) Do(ctx context.Context, objectKey string, fn Operation) (Outcome, error) {
	var exists bool
	bestEffort(ctx, "head object", objectKey, func(ctx context.Context) error {
		var err error
		exists, err = g.objects.Exists(ctx, objectKey)
		return err
	})
	if exists {
		logging.Ctx(ctx).Info().Str("object_key", objectKey).Msg("object already exists, skipping write")
		return AlreadyDone, nil
	}

	return Performed, fn(ctx)
}
