package models

import (
	"time"
)

// RestDay is the session value recorded for days without programming.
const RestDay = "Rest Day"

// RawPost is a single blog post as returned by the fetch step
type RawPost struct {
	ID          int       `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	HTMLBody    string    `json:"html_body"`
}

// DayBlock is the plain text published under one weekday heading
type DayBlock struct {
	Weekday time.Weekday
	Text    string
}

// WeekdayBlock holds one text block per weekday, in heading order.
// A weekday appears at most once.
type WeekdayBlock []DayBlock

// Get returns the block for the given weekday.
func (w WeekdayBlock) Get(day time.Weekday) (string, bool) {
	for _, b := range w {
		if b.Weekday == day {
			return b.Text, true
		}
	}
	return "", false
}

// Label identifies a workout segment within a day
type Label string

const (
	LabelSession  Label = "session"
	LabelWarmUp   Label = "warm_up"
	LabelSegmentA Label = "segment_a"
	LabelSegmentB Label = "segment_b"
	LabelSegmentC Label = "segment_c"
	LabelSegmentD Label = "segment_d"
	LabelSegmentE Label = "segment_e"
)

// SegmentedDay maps a segment label to its text. Labels that were not
// found in the source are absent.
type SegmentedDay map[Label]string

// IsRestDay reports whether the day carries only the rest-day sentinel.
func (d SegmentedDay) IsRestDay() bool {
	return len(d) == 1 && d[LabelSession] == RestDay
}

// DayPlan is a segmented weekday, the unit handed to the date mapper
type DayPlan struct {
	Weekday  time.Weekday
	Segments SegmentedDay
}

// DateRecord is the normalized, persisted session record
type DateRecord struct {
	Date     string  `json:"date" dynamodbav:"date" bson:"date"`
	Session  string  `json:"session" dynamodbav:"session" bson:"session"`
	WarmUp   *string `json:"warm_up" dynamodbav:"warm_up" bson:"warm_up"`
	SegmentA *string `json:"segment_a" dynamodbav:"segment_a" bson:"segment_a"`
	SegmentB *string `json:"segment_b" dynamodbav:"segment_b" bson:"segment_b"`
	SegmentC *string `json:"segment_c" dynamodbav:"segment_c" bson:"segment_c"`
	SegmentD *string `json:"segment_d" dynamodbav:"segment_d" bson:"segment_d"`
	SegmentE *string `json:"segment_e" dynamodbav:"segment_e" bson:"segment_e"`
}

// Key returns the canonical composite identity of the record.
func (r DateRecord) Key() string {
	return r.Date + "#" + r.Session
}

// Segment returns the optional field stored under label.
func (r DateRecord) Segment(label Label) *string {
	switch label {
	case LabelWarmUp:
		return r.WarmUp
	case LabelSegmentA:
		return r.SegmentA
	case LabelSegmentB:
		return r.SegmentB
	case LabelSegmentC:
		return r.SegmentC
	case LabelSegmentD:
		return r.SegmentD
	case LabelSegmentE:
		return r.SegmentE
	}
	return nil
}

// SetSegment stores v in the optional field for label. Other labels are ignored.
func (r *DateRecord) SetSegment(label Label, v *string) {
	switch label {
	case LabelWarmUp:
		r.WarmUp = v
	case LabelSegmentA:
		r.SegmentA = v
	case LabelSegmentB:
		r.SegmentB = v
	case LabelSegmentC:
		r.SegmentC = v
	case LabelSegmentD:
		r.SegmentD = v
	case LabelSegmentE:
		r.SegmentE = v
	}
}

// OptionalLabels lists the nullable segment fields of a DateRecord in column order.
var OptionalLabels = []Label{
	LabelWarmUp,
	LabelSegmentA,
	LabelSegmentB,
	LabelSegmentC,
	LabelSegmentD,
	LabelSegmentE,
}

// Idempotency record statuses
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
)

// IdempotencyRecord marks a guarded operation as claimed or completed
type IdempotencyRecord struct {
	IdempotencyKey string    `json:"idempotency_key" dynamodbav:"idempotency_key"`
	Status         string    `json:"status" dynamodbav:"status"`
	CreatedAt      time.Time `json:"created_at" dynamodbav:"created_at"`
	TTL            int64     `json:"ttl" dynamodbav:"ttl"` // epoch seconds
}

// Expired reports whether the record's retention window has passed.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return r.TTL <= now.Unix()
}

// IngestionStatus tracks the status of ingestion runs
type IngestionStatus struct {
	LastSuccessfulRun time.Time `json:"last_successful_run" dynamodbav:"last_successful_run" bson:"last_successful_run"`
	LastAttempt       time.Time `json:"last_attempt" dynamodbav:"last_attempt" bson:"last_attempt"`
	Status            string    `json:"status" dynamodbav:"status" bson:"status"` // "success", "failure", "running"
	ErrorMessage      string    `json:"error_message,omitempty" dynamodbav:"error_message,omitempty" bson:"error_message,omitempty"`
	PostsProcessed    int       `json:"posts_processed" dynamodbav:"posts_processed" bson:"posts_processed"`
	RecordsIngested   int       `json:"records_ingested" dynamodbav:"records_ingested" bson:"records_ingested"`
	RecordsSkipped    int       `json:"records_skipped" dynamodbav:"records_skipped" bson:"records_skipped"`
}
