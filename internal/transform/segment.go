package transform

import (
	"strings"

	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// SegmentDay splits one weekday block into labeled segments.
//
// A blank block or one holding only a rest-day phrase yields the rest-day
// sentinel as its session. Text before the first marker becomes the session
// when the block has no explicit Session marker. Labels that never appear are
// left out of the result.
func SegmentDay(block string) models.SegmentedDay {
	if strings.TrimSpace(block) == "" || isRestDay(block) {
		return models.SegmentedDay{models.LabelSession: models.RestDay}
	}

	day := make(models.SegmentedDay)
	var (
		leading []string
		label   models.Label
		parts   []string
	)

	flush := func() {
		if label == "" {
			return
		}
		if text := strings.Join(parts, " "); text != "" {
			day[label] = text
		}
	}

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if next, inline, ok := matchSegment(line); ok {
			flush()
			label, parts = next, nil
			if inline != "" {
				parts = append(parts, inline)
			}
			continue
		}
		if label == "" {
			leading = append(leading, line)
		} else {
			parts = append(parts, line)
		}
	}
	flush()

	if _, ok := day[models.LabelSession]; !ok && len(leading) > 0 {
		day[models.LabelSession] = strings.Join(leading, " ")
	}
	return day
}

// SegmentWeek segments every weekday block, keeping heading order.
func SegmentWeek(blocks models.WeekdayBlock) []models.DayPlan {
	plans := make([]models.DayPlan, 0, len(blocks))
	for _, b := range blocks {
		plans = append(plans, models.DayPlan{Weekday: b.Weekday, Segments: SegmentDay(b.Text)})
	}
	return plans
}
