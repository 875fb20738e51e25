package ingestion

import (
	"fmt"
	"path"
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/models"
	"github.com/cyderes/wod-ingestion-service/internal/transform"
)

// Operation names scoping idempotency keys.
const (
	OpDumpPost     = "dump_post_to_bucket"
	OpPutSession   = "put_session"
	OpSaveSessions = "save_sessions_to_bucket"
)

// RawPostPath returns the object key of a post's raw dump:
// {prefix}/{published date}__{slug}__raw.json
func RawPostPath(prefix string, post models.RawPost) string {
	name := fmt.Sprintf("%s__%s__raw.json", post.PublishedAt.Format(transform.DateLayout), post.Slug)
	return path.Join(prefix, name)
}

// ArchivePath returns the object key of the weekly archive holding records:
// {layer}/{year}/week_{week}--{start}__{end}.jsonl, where year and week are
// the ISO week of the earliest date. Records must carry cleaned dates.
func ArchivePath(layer string, records []models.DateRecord) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("no records to archive")
	}

	var start, end time.Time
	for i, r := range records {
		d, err := time.Parse(transform.DateLayout, r.Date)
		if err != nil {
			return "", fmt.Errorf("record %s has invalid date: %w", r.Key(), err)
		}
		if i == 0 || d.Before(start) {
			start = d
		}
		if i == 0 || d.After(end) {
			end = d
		}
	}

	year, week := start.ISOWeek()
	name := fmt.Sprintf("week_%02d--%s__%s.jsonl", week, start.Format(transform.DateLayout), end.Format(transform.DateLayout))
	return path.Join(layer, fmt.Sprint(year), name), nil
}
