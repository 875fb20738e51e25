// Package transform turns a weekly workout post into cleaned session records.
//
// The stages run strictly in order: NormalizeHTML, GroupByWeekday,
// SegmentWeek, MapDates, CleanRecords. Unrecognized structure shrinks the
// output instead of failing; only malformed input returns a *StageError.
package transform

import (
	"strings"

	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// Run executes the full pipeline for one post. A post without weekday
// headings returns zero records and no error.
func Run(post models.RawPost) ([]models.DateRecord, error) {
	if post.PublishedAt.IsZero() {
		return nil, malformed(StageInput, post.Slug, "post has no published date")
	}
	if strings.TrimSpace(post.Slug) == "" {
		return nil, malformed(StageInput, post.Title, "post has no slug")
	}

	text, err := NormalizeHTML(post.HTMLBody)
	if err != nil {
		return nil, err
	}

	plans := SegmentWeek(GroupByWeekday(text))
	records, err := MapDates(plans, WeekStart(post.PublishedAt))
	if err != nil {
		return nil, err
	}
	return CleanRecords(records)
}
