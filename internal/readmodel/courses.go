package readmodel

import (
	"context"

	"github.com/Its-donkey/campus-portal/internal/tables"
)

// CourseTables are the tables a course listing reads.
var CourseTables = []string{"courses", "teachers", "course_selections", "schedules", "classrooms"}

const unassignedTeacher = "未分配教师"

// Course types.
const (
	Compulsory = "compulsory"
	Elective   = "elective"
)

// ListedCourse is one row of the course catalogue.
type ListedCourse struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Credit  float64 `json:"credit"`
	Teacher string  `json:"teacher"`
	Remain  int     `json:"remain"`
	Type    string  `json:"type"`
	Time    string  `json:"time"`
}

// CourseListing joins courses with their teachers, selections and weekly
// schedule.
type CourseListing struct {
	consumer *tables.Consumer
	courses  *tables.Projection[[]ListedCourse]
}

// NewCourseListing reads the store from ctx and starts loading the course
// tables.
func NewCourseListing(ctx context.Context) (*CourseListing, error) {
	store, err := tables.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	c := tables.NewConsumer(ctx, store, CourseTables...)
	return &CourseListing{
		consumer: c,
		courses:  tables.NewProjection(c, buildCourses),
	}, nil
}

// Courses returns the listing for the current snapshots.
func (l *CourseListing) Courses() []ListedCourse {
	return l.courses.Get()
}

// Reload refreshes the underlying tables.
func (l *CourseListing) Reload(ctx context.Context, force bool) error {
	return l.consumer.Reload(ctx, force)
}

// Loading reports whether a reload is running.
func (l *CourseListing) Loading() bool { return l.consumer.Loading() }

// Err is the last load failure message.
func (l *CourseListing) Err() string { return l.consumer.Err() }

func buildCourses(c *tables.Consumer) []ListedCourse {
	teachers := tables.Index(c.Rows("teachers"), "id")

	classrooms := make(map[string]string)
	for _, room := range c.Rows("classrooms") {
		classrooms[room.Key("id")] = room.String("name")
	}

	selected := make(map[string]int)
	for _, sel := range c.Rows("course_selections") {
		selected[sel.Key("course_id")]++
	}

	slots := make(map[string][]Slot)
	for _, item := range c.Rows("schedules") {
		id := item.Key("course_id")
		slots[id] = append(slots[id], Slot{
			Day:         item.Int("day"),
			Period:      item.Int("period"),
			ClassroomID: item.Key("classroom_id"),
		})
	}

	rows := c.Rows("courses")
	out := make([]ListedCourse, 0, len(rows))
	for _, course := range rows {
		id := course.Key("id")
		teacher := teachers[course.Key("teacher_id")].String("name")
		if teacher == "" {
			teacher = unassignedTeacher
		}
		kind := Elective
		if course.String("course_type") == "必修" {
			kind = Compulsory
		}
		out = append(out, ListedCourse{
			ID:      course.Int("id"),
			Name:    course.String("name"),
			Credit:  course.Float("credit"),
			Teacher: teacher,
			Remain:  Remaining(course.Int("capacity"), selected[id]),
			Type:    kind,
			Time:    FormatSchedule(slots[id], classrooms),
		})
	}
	return out
}

// Remaining is the number of free seats, never below zero.
func Remaining(capacity, selections int) int {
	return max(capacity-selections, 0)
}
