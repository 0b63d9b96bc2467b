package exam

import "time"

type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Mimetype string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type Exam struct {
	ID              string     `json:"id"`
	TeacherID       string     `json:"teacherId"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Audience        string     `json:"audience,omitempty"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes int        `json:"durationMinutes,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Open reports whether t falls inside the exam's schedule window.
// Unset bounds are unbounded.
func (e Exam) Open(t time.Time) bool {
	if e.StartTime != nil && t.Before(*e.StartTime) {
		return false
	}
	if e.EndTime != nil && t.After(*e.EndTime) {
		return false
	}
	return true
}

type Question struct {
	ID          string       `json:"id"`
	ExamID      string       `json:"examId"`
	Text        string       `json:"text"`
	Options     []string     `json:"options"`
	AnswerIndex *int         `json:"answerIndex,omitempty"` // nil when hidden from the caller
	Points      float64      `json:"points"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
)

type Answer struct {
	QuestionID    string  `json:"questionId"`
	SelectedIndex int     `json:"selectedIndex"`
	Correct       bool    `json:"correct"`
	Score         float64 `json:"score"`
}

type Attempt struct {
	ID          string     `json:"id"`
	ExamID      string     `json:"examId"`
	StudentID   string     `json:"studentId"`
	Status      Status     `json:"status"`
	Answers     []Answer   `json:"answers"`
	TotalScore  int        `json:"totalScore"`
	StartedAt   time.Time  `json:"startedAt"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
