package exam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/db/dbtest"
	"github.com/mind-engage/mindengage-exams/internal/errs"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recorder struct {
	mu     sync.Mutex
	events []syncx.Event
}

func (r *recorder) Append(_ context.Context, e syncx.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

var (
	teacher = rbac.Identity{SubjectID: "teacher-1", Role: rbac.RoleTeacher}
	other   = rbac.Identity{SubjectID: "teacher-2", Role: rbac.RoleTeacher}
	student = rbac.Identity{SubjectID: "student-1", Role: rbac.RoleStudent}
	peer    = rbac.Identity{SubjectID: "student-2", Role: rbac.RoleStudent}
)

func newService(t *testing.T, opts ...Option) (*Service, *stepClock) {
	t.Helper()
	clk := &stepClock{t: t0}
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return NewService(NewSQLStore(dbtest.NewHandle(t)), opts...), clk
}

func ptr[T any](v T) *T { return &v }

// fourQuestionExam creates an exam whose answer key is [0,1,2,3].
func fourQuestionExam(t *testing.T, s *Service) (Exam, []Question) {
	t.Helper()
	ctx := context.Background()
	e, err := s.CreateExam(ctx, teacher, ExamInput{Title: "Algebra"})
	require.NoError(t, err)
	var qs []Question
	for i := 0; i < 4; i++ {
		q, err := s.CreateQuestion(ctx, teacher, QuestionInput{
			ExamID: e.ID, Text: "q", Options: []string{"a", "b", "c", "d"}, AnswerIndex: ptr(i),
		})
		require.NoError(t, err)
		qs = append(qs, q)
	}
	return e, qs
}

func answersFor(qs []Question, picks ...int) []Answer {
	out := make([]Answer, 0, len(picks))
	for i, p := range picks {
		out = append(out, Answer{QuestionID: qs[i].ID, SelectedIndex: p})
	}
	return out
}

func TestSubmitAttempt_Scores(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s, _ := newService(t, WithEvents(rec))
	e, qs := fourQuestionExam(t, s)

	cases := []struct {
		name    string
		answers []Answer
		want    int
	}{
		{"all correct", answersFor(qs, 0, 1, 2, 3), 100},
		{"none answered", nil, 0},
		{"half answered", answersFor(qs, 0, 1), 50},
		{"one wrong", answersFor(qs, 0, 1, 2, 0), 75},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := s.SubmitAttempt(ctx, student, e.ID, tc.answers)
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.TotalScore)
			assert.Equal(t, StatusSubmitted, a.Status)
			assert.Equal(t, student.SubjectID, a.StudentID)
		})
	}
	assert.Len(t, rec.events, len(cases))
	assert.Equal(t, syncx.TypeAttemptSubmitted, rec.events[0].Type)
}

func TestSubmitAttempt_Rejects(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	e, qs := fourQuestionExam(t, s)

	_, err := s.SubmitAttempt(ctx, student, "not-a-uuid", nil)
	assert.True(t, errs.Is(err, errs.Validation))

	_, err = s.SubmitAttempt(ctx, student, uuid.NewString(), nil)
	assert.True(t, errs.Is(err, errs.NotFound))

	dup := append(answersFor(qs, 0), Answer{QuestionID: qs[0].ID, SelectedIndex: 1})
	_, err = s.SubmitAttempt(ctx, student, e.ID, dup)
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestSubmitAttempt_ScheduleWindow(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	future := t0.Add(24 * time.Hour)
	e, err := s.CreateExam(ctx, teacher, ExamInput{Title: "later", StartTime: &future})
	require.NoError(t, err)
	_, err = s.SubmitAttempt(ctx, student, e.ID, nil)
	assert.True(t, errs.Is(err, errs.Validation))
	_, err = s.StartAttempt(ctx, student, e.ID)
	assert.True(t, errs.Is(err, errs.Validation))

	past := t0.Add(-time.Hour)
	closed, err := s.CreateExam(ctx, teacher, ExamInput{Title: "gone", StartTime: ptr(t0.Add(-2 * time.Hour)), EndTime: &past})
	require.NoError(t, err)
	_, err = s.SubmitAttempt(ctx, student, closed.ID, nil)
	assert.True(t, errs.Is(err, errs.Validation))
}

func TestCreateExam_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	_, err := s.CreateExam(ctx, student, ExamInput{Title: "x"})
	assert.True(t, errs.Is(err, errs.Forbidden))

	_, err = s.CreateExam(ctx, teacher, ExamInput{Title: "  "})
	require.True(t, errs.Is(err, errs.Validation))
	assert.Contains(t, errs.As(err).Fields, "title")

	_, err = s.CreateExam(ctx, teacher, ExamInput{Title: "x", StartTime: ptr(t0), EndTime: ptr(t0)})
	require.True(t, errs.Is(err, errs.Validation))
	assert.Contains(t, errs.As(err).Fields, "endTime")
}

func TestListExams_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	a, err := s.CreateExam(ctx, teacher, ExamInput{Title: "a"})
	require.NoError(t, err)
	b, err := s.CreateExam(ctx, other, ExamInput{Title: "b"})
	require.NoError(t, err)

	got, err := s.ListExams(ctx, ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}

func TestQuestions_OwnershipAndVisibility(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	e, _ := fourQuestionExam(t, s)

	_, err := s.CreateQuestion(ctx, other, QuestionInput{ExamID: e.ID, Text: "q", Options: []string{"a", "b"}, AnswerIndex: ptr(0)})
	assert.True(t, errs.Is(err, errs.Forbidden))

	_, err = s.CreateQuestion(ctx, teacher, QuestionInput{ExamID: e.ID, Text: "q", Options: []string{"a", "b"}, AnswerIndex: ptr(2)})
	require.True(t, errs.Is(err, errs.Validation))
	assert.Contains(t, errs.As(err).Fields, "answerIndex")

	_, err = s.CreateQuestion(ctx, teacher, QuestionInput{ExamID: e.ID, Text: "q", Options: []string{"a"}, AnswerIndex: ptr(0)})
	assert.True(t, errs.Is(err, errs.Validation))

	_, err = s.CreateQuestion(ctx, teacher, QuestionInput{ExamID: uuid.NewString(), Text: "q", Options: []string{"a", "b"}, AnswerIndex: ptr(0)})
	assert.True(t, errs.Is(err, errs.NotFound))

	owned, err := s.ListQuestions(ctx, teacher, e.ID)
	require.NoError(t, err)
	require.Len(t, owned, 4)
	for i, q := range owned {
		require.NotNil(t, q.AnswerIndex)
		assert.Equal(t, i, *q.AnswerIndex)
	}

	for _, who := range []rbac.Identity{student, other} {
		hidden, err := s.ListQuestions(ctx, who, e.ID)
		require.NoError(t, err)
		require.Len(t, hidden, 4)
		for _, q := range hidden {
			assert.Nil(t, q.AnswerIndex)
		}
	}
}

func TestDeleteExam(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	e, _ := fourQuestionExam(t, s)

	assert.True(t, errs.Is(s.DeleteExam(ctx, other, e.ID), errs.Forbidden))
	assert.True(t, errs.Is(s.DeleteExam(ctx, student, e.ID), errs.Forbidden))
	require.NoError(t, s.DeleteExam(ctx, teacher, e.ID))

	_, err := s.GetExam(ctx, e.ID)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s, _ := newService(t, WithEvents(rec))
	e, qs := fourQuestionExam(t, s)

	a, err := s.StartAttempt(ctx, student, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, a.Status)

	_, err = s.SaveAnswers(ctx, peer, a.ID, answersFor(qs, 0))
	assert.True(t, errs.Is(err, errs.Forbidden))

	_, err = s.SaveAnswers(ctx, student, a.ID, answersFor(qs, 3, 1))
	require.NoError(t, err)
	a, err = s.SaveAnswers(ctx, student, a.ID, answersFor(qs, 0, 1, 2))
	require.NoError(t, err)
	require.Len(t, a.Answers, 3)
	assert.Equal(t, 0, a.Answers[0].SelectedIndex)

	done, err := s.FinishAttempt(ctx, student, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, done.Status)
	assert.Equal(t, 75, done.TotalScore)
	require.NotNil(t, done.SubmittedAt)

	again, err := s.FinishAttempt(ctx, student, a.ID)
	require.NoError(t, err)
	assert.Equal(t, done.TotalScore, again.TotalScore)
	assert.Len(t, rec.events, 1)

	_, err = s.SaveAnswers(ctx, student, a.ID, answersFor(qs, 0))
	assert.True(t, errs.Is(err, errs.Conflict))
}

func TestAttemptVisibility(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	e, qs := fourQuestionExam(t, s)

	mine, err := s.SubmitAttempt(ctx, student, e.ID, answersFor(qs, 0))
	require.NoError(t, err)
	theirs, err := s.SubmitAttempt(ctx, peer, e.ID, answersFor(qs, 0, 1))
	require.NoError(t, err)

	_, err = s.GetAttempt(ctx, student, mine.ID)
	require.NoError(t, err)
	_, err = s.GetAttempt(ctx, student, theirs.ID)
	assert.True(t, errs.Is(err, errs.Forbidden))
	_, err = s.GetAttempt(ctx, teacher, theirs.ID)
	require.NoError(t, err)

	// a student's filter on someone else is overridden
	got, err := s.ListAttempts(ctx, student, AttemptListOpts{ExamID: e.ID, StudentID: peer.SubjectID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)

	all, err := s.ListAttempts(ctx, teacher, AttemptListOpts{ExamID: e.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, theirs.ID, all[0].ID)
}

func TestBestScore(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	e, qs := fourQuestionExam(t, s)

	_, err := s.BestScore(ctx, student, e.ID)
	assert.True(t, errs.Is(err, errs.NotFound))

	for _, picks := range [][]int{{0}, {0, 1, 2}, {0, 1}} {
		_, err := s.SubmitAttempt(ctx, student, e.ID, answersFor(qs, picks...))
		require.NoError(t, err)
	}
	// in-progress attempts do not count
	_, err = s.StartAttempt(ctx, student, e.ID)
	require.NoError(t, err)

	best, err := s.BestScore(ctx, student, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, best)
}

func TestWeightedScoring(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, WithWeightedScoring(true))

	e, err := s.CreateExam(ctx, teacher, ExamInput{Title: "weighted"})
	require.NoError(t, err)
	heavy, err := s.CreateQuestion(ctx, teacher, QuestionInput{ExamID: e.ID, Text: "h", Options: []string{"a", "b"}, AnswerIndex: ptr(0), Points: 3})
	require.NoError(t, err)
	_, err = s.CreateQuestion(ctx, teacher, QuestionInput{ExamID: e.ID, Text: "l", Options: []string{"a", "b"}, AnswerIndex: ptr(0)})
	require.NoError(t, err)

	a, err := s.SubmitAttempt(ctx, student, e.ID, []Answer{{QuestionID: heavy.ID, SelectedIndex: 0}})
	require.NoError(t, err)
	assert.Equal(t, 75, a.TotalScore)
}
