// Package readmodel derives display records (course listings, student
// grades) from the shared table cache.
package readmodel

import (
	"fmt"
	"sort"
	"strings"
)

// DayLabels names weekdays by zero-based index.
var DayLabels = [7]string{"周一", "周二", "周三", "周四", "周五", "周六", "周日"}

// Period is a teaching block with its display label and clock range.
type Period struct {
	Label string
	Time  string
}

// Periods maps zero-based period indexes to their blocks.
var Periods = map[int]Period{
	0: {Label: "第1-2节", Time: "08:00-09:40"},
	1: {Label: "第3-4节", Time: "10:00-11:40"},
	2: {Label: "第5-6节", Time: "14:00-15:40"},
	3: {Label: "第7-8节", Time: "16:00-17:40"},
	4: {Label: "第9-10节", Time: "19:00-20:40"},
	5: {Label: "第11-12节", Time: "20:40-22:00"},
}

const (
	unscheduled      = "未排课"
	unknownClassroom = "待定教室"
	slotSeparator    = " / "
)

// Slot is one weekly meeting of a course.
type Slot struct {
	Day         int
	Period      int
	ClassroomID string
}

// DayLabel returns the weekday name, or 周N (N = day+1) outside 0..6.
func DayLabel(day int) string {
	if day >= 0 && day < len(DayLabels) {
		return DayLabels[day]
	}
	return fmt.Sprintf("周%d", day+1)
}

// PeriodFor returns the block for period, falling back to a bare 第N节 label
// with no time range.
func PeriodFor(period int) Period {
	if p, ok := Periods[period]; ok {
		return p
	}
	return Period{Label: fmt.Sprintf("第%d节", period+1)}
}

// FormatSchedule renders slots ordered by day then period, e.g.
// "周一 · 第3-4节 · A101(10:00-11:40)". classrooms maps classroom ids to
// names.
func FormatSchedule(slots []Slot, classrooms map[string]string) string {
	if len(slots) == 0 {
		return unscheduled
	}
	ordered := make([]Slot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Day != ordered[j].Day {
			return ordered[i].Day < ordered[j].Day
		}
		return ordered[i].Period < ordered[j].Period
	})

	parts := make([]string, 0, len(ordered))
	for _, slot := range ordered {
		period := PeriodFor(slot.Period)
		room := classrooms[slot.ClassroomID]
		if room == "" {
			room = unknownClassroom
		}
		var b strings.Builder
		b.WriteString(DayLabel(slot.Day))
		b.WriteString(" · ")
		b.WriteString(period.Label)
		b.WriteString(" · ")
		b.WriteString(room)
		if period.Time != "" {
			b.WriteString("(" + period.Time + ")")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, slotSeparator)
}
