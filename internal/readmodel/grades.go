package readmodel

import (
	"context"
	"math"
	"strconv"

	"github.com/Its-donkey/campus-portal/internal/tables"
)

// GradeTables are the tables a grade report reads.
var GradeTables = []string{"grades", "courses", "teachers"}

const (
	unsetCourse    = "未设置课程"
	unsetTeacher   = "未设置"
	unclassified   = "未分类"
	gradeComment   = "来源于数据库成绩记录"
	examType       = "考试"
	courseworkType = "考查"
)

// GradeDetail splits a score into its usual, midterm and final parts.
type GradeDetail struct {
	UsualScore   int    `json:"usualScore"`
	MidtermScore int    `json:"midtermScore"`
	FinalScore   int    `json:"finalScore"`
	Comment      string `json:"comment"`
}

// GradeRecord is one course result of a student.
type GradeRecord struct {
	ID             int         `json:"id"`
	CourseName     string      `json:"courseName"`
	CourseID       string      `json:"courseId"`
	Credit         float64     `json:"credit"`
	Score          int         `json:"score"`
	GPA            float64     `json:"gpa"`
	Level          string      `json:"level"`
	LevelColor     string      `json:"levelColor"`
	AssessmentType string      `json:"assessmentType"`
	Semester       string      `json:"semester"`
	TeacherName    string      `json:"teacherName"`
	Details        GradeDetail `json:"details"`
}

// CalculateGPA maps a percentage score to grade points: 0 below 60,
// otherwise score/10-5 rounded to one decimal.
func CalculateGPA(score float64) float64 {
	if score < 60 {
		return 0
	}
	return max(0, math.Round((score/10-5)*10)/10)
}

// GradeLevel buckets a score.
func GradeLevel(score float64) string {
	switch {
	case score >= 90:
		return "优秀"
	case score >= 80:
		return "良好"
	case score >= 60:
		return "及格"
	default:
		return "不及格"
	}
}

// GradeLevelColor is the display colour for a score.
func GradeLevelColor(score float64) string {
	switch {
	case score >= 80:
		return "#52C41A"
	case score < 60:
		return "#F56C6C"
	default:
		return "#303133"
	}
}

// StudentGrades lists grade records, optionally for one student account.
type StudentGrades struct {
	consumer *tables.Consumer
	records  *tables.Projection[[]GradeRecord]
	account  string
}

// NewStudentGrades reads the store from ctx and starts loading the grade
// tables. An empty account lists every grade.
func NewStudentGrades(ctx context.Context, account string) (*StudentGrades, error) {
	store, err := tables.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	g := &StudentGrades{account: account}
	g.consumer = tables.NewConsumer(ctx, store, GradeTables...)
	g.records = tables.NewProjection(g.consumer, g.build)
	return g, nil
}

// Grades returns the records for the current snapshots.
func (g *StudentGrades) Grades() []GradeRecord {
	return g.records.Get()
}

// Reload refreshes the underlying tables.
func (g *StudentGrades) Reload(ctx context.Context, force bool) error {
	return g.consumer.Reload(ctx, force)
}

// Loading reports whether a reload is running.
func (g *StudentGrades) Loading() bool { return g.consumer.Loading() }

// Err is the last load failure message.
func (g *StudentGrades) Err() string { return g.consumer.Err() }

func (g *StudentGrades) build(c *tables.Consumer) []GradeRecord {
	courses := tables.Index(c.Rows("courses"), "id")
	teachers := tables.Index(c.Rows("teachers"), "id")

	rows := c.Rows("grades")
	out := make([]GradeRecord, 0, len(rows))
	for _, grade := range rows {
		if g.account != "" && grade.String("student_id") != g.account {
			continue
		}
		out = append(out, gradeRecord(grade, courses, teachers))
	}
	return out
}

func gradeRecord(grade tables.Row, courses, teachers map[string]tables.Row) GradeRecord {
	course, hasCourse := courses[grade.Key("course_id")]
	score := grade.Float("score")

	rec := GradeRecord{
		ID:             grade.Int("id"),
		CourseName:     unsetCourse,
		CourseID:       grade.Key("course_id"),
		Score:          int(math.Round(score)),
		GPA:            CalculateGPA(score),
		Level:          GradeLevel(score),
		LevelColor:     GradeLevelColor(score),
		AssessmentType: courseworkType,
		Semester:       unclassified,
		TeacherName:    unsetTeacher,
		Details: GradeDetail{
			UsualScore:   int(math.Round(score * 0.3)),
			MidtermScore: int(math.Round(score * 0.3)),
			FinalScore:   int(math.Round(score * 0.4)),
			Comment:      gradeComment,
		},
	}
	if grade.String("exam_type") == "final" {
		rec.AssessmentType = examType
	}
	if !hasCourse {
		return rec
	}

	rec.CourseID = course.Key("id")
	rec.Credit = course.Float("credit")
	if name := course.String("name"); name != "" {
		rec.CourseName = name
	}
	if created := []rune(course.String("create_time")); len(created) > 0 {
		rec.Semester = string(created[:min(7, len(created))])
	}
	if name := teachers[course.Key("teacher_id")].String("name"); name != "" {
		rec.TeacherName = name
	} else if id := course.String("teacher_id"); id != "" {
		rec.TeacherName = id
	}
	return rec
}

// FormatGPA renders grade points with one decimal.
func FormatGPA(gpa float64) string {
	return strconv.FormatFloat(gpa, 'f', 1, 64)
}
