package models

import (
	"strings"
	"time"
)

// Lesson is one taught period within a daily report.
type Lesson struct {
	Subject string `json:"subject" validate:"required,max=120"`
	Class   string `json:"class" validate:"required,max=60"`
	Period  int    `json:"period" validate:"gte=0,lte=12"`
	Topic   string `json:"topic,omitempty" validate:"max=500"`
}

// Report is a teacher's daily report.
type Report struct {
	ID         UUID     `json:"id"`
	TeacherID  string   `json:"teacher_id" validate:"required,max=64"`
	SchoolID   string   `json:"school_id,omitempty" validate:"max=64"`
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	Lessons    []Lesson `json:"lessons" validate:"max=12,dive"`
	Strategies []string `json:"strategies,omitempty" validate:"max=20,dive,max=200"`
	Notes      string   `json:"notes,omitempty" validate:"max=4000"`
	CreatedAt  int64    `json:"created_at"` // unix millis
}

// BusinessKey identifies the report across resubmissions: one report per
// teacher per day.
func (r *Report) BusinessKey() string {
	return r.Date + "|" + r.TeacherID
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (r *Report) CreatedAtTime() time.Time {
	return time.UnixMilli(r.CreatedAt)
}

// Rows flattens the report into sheet rows, one per lesson. A report
// without lessons still produces a single row so notes are delivered.
func (r *Report) Rows() [][]interface{} {
	strategies := strings.Join(r.Strategies, "; ")
	submitted := r.CreatedAtTime().UTC().Format(time.RFC3339)

	row := func(l Lesson) []interface{} {
		return []interface{}{
			r.Date, r.TeacherID, r.SchoolID,
			l.Subject, l.Class, l.Period, l.Topic,
			strategies, r.Notes, submitted, string(r.ID),
		}
	}

	if len(r.Lessons) == 0 {
		return [][]interface{}{row(Lesson{})}
	}
	rows := make([][]interface{}, 0, len(r.Lessons))
	for _, l := range r.Lessons {
		rows = append(rows, row(l))
	}
	return rows
}
