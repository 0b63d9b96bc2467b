package exam

import "context"

type ListOpts struct {
	TeacherID string // optional owner filter
	Limit     int
	Offset    int
}

type AttemptListOpts struct {
	ExamID    string
	StudentID string
	Status    Status
	Limit     int
	Offset    int
}

// Store persists exams, questions and attempts. Lookups of absent rows fail
// with a NotFound error.
type Store interface {
	CreateExam(ctx context.Context, e Exam) error
	GetExam(ctx context.Context, id string) (Exam, error)
	// ListExams returns exams newest first.
	ListExams(ctx context.Context, opts ListOpts) ([]Exam, error)
	// DeleteExam removes the exam with its questions and attempts.
	DeleteExam(ctx context.Context, id string) error

	CreateQuestion(ctx context.Context, q Question) error
	// ListQuestions returns questions in creation order, answer index included.
	ListQuestions(ctx context.Context, examID string) ([]Question, error)

	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// SaveAnswers replaces the answers of an in-progress attempt.
	// It fails with Conflict once the attempt is submitted.
	SaveAnswers(ctx context.Context, attemptID string, answers []Answer) error
	// MarkSubmitted stores the scored answers and flips the status. Only one
	// caller can win; the others get Conflict.
	MarkSubmitted(ctx context.Context, a Attempt) error
	// ListAttempts returns attempts newest first.
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	SubmittedScores(ctx context.Context, examID, studentID string) ([]int, error)
}
