package transform

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// dateLayouts are the forms accepted for DateRecord.Date before cleaning.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// CleanRecords normalizes records for persistence: whitespace is trimmed and
// collapsed, empty optional fields become nil, dates are re-serialized as
// YYYY-MM-DD and exact duplicates are dropped keeping the first. Applying it
// to its own output returns the same records.
func CleanRecords(records []models.DateRecord) ([]models.DateRecord, error) {
	cleaned := make([]models.DateRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, r := range records {
		out, err := cleanRecord(r)
		if err != nil {
			return nil, err
		}

		fingerprint, err := json.Marshal(out)
		if err != nil {
			return nil, &StageError{Stage: StageClean, Value: out.Key(), Err: err}
		}
		if _, dup := seen[string(fingerprint)]; dup {
			continue
		}
		seen[string(fingerprint)] = struct{}{}
		cleaned = append(cleaned, out)
	}
	return cleaned, nil
}

func cleanRecord(r models.DateRecord) (models.DateRecord, error) {
	date, err := parseDate(collapse(r.Date))
	if err != nil {
		return models.DateRecord{}, malformed(StageClean, r.Date, "unparseable date")
	}

	out := models.DateRecord{
		Date:    date.Format(DateLayout),
		Session: collapse(r.Session),
	}
	if out.Session == "" {
		out.Session = models.RestDay
	}
	for _, label := range models.OptionalLabels {
		if v := r.Segment(label); v != nil {
			if text := collapse(*v); text != "" {
				out.SetSegment(label, &text)
			}
		}
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// collapse trims s and folds every whitespace run into one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
