package transform

import (
	"strings"
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// GroupByWeekday splits plain text into one block per weekday heading.
//
// Text before the first heading is discarded. Text following the weekday and
// date on a heading line opens the block. When a weekday heading repeats,
// the later content replaces the earlier block in its original position. Text
// without any heading yields an empty result.
func GroupByWeekday(text string) models.WeekdayBlock {
	var (
		blocks  models.WeekdayBlock
		index   = make(map[time.Weekday]int)
		current = -1
		lines   []string
	)

	flush := func() {
		if current >= 0 {
			blocks[current].Text = strings.Join(lines, "\n")
		}
		lines = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if day, rest, ok := matchWeekday(line); ok {
			flush()
			if i, seen := index[day]; seen {
				current = i
			} else {
				blocks = append(blocks, models.DayBlock{Weekday: day})
				current = len(blocks) - 1
				index[day] = current
			}
			if rest != "" {
				lines = append(lines, rest)
			}
			continue
		}
		if current >= 0 && line != "" {
			lines = append(lines, line)
		}
	}
	flush()

	return blocks
}
