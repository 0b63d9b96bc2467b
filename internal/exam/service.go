package exam

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mind-engage/mindengage-exams/internal/errs"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

var errNotOpen = errs.E(errs.Validation, "exam is not open")

// EventAppender receives an event for every submitted attempt.
type EventAppender interface {
	Append(ctx context.Context, e syncx.Event) error
}

type ExamInput struct {
	Title           string
	Description     string
	Audience        string
	StartTime       *time.Time
	EndTime         *time.Time
	DurationMinutes int
}

type QuestionInput struct {
	ExamID      string
	Text        string
	Options     []string
	AnswerIndex *int
	Points      float64
	Attachments []Attachment
}

type Service struct {
	store    Store
	events   EventAppender
	now      func() time.Time
	weighted bool
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithEvents(e EventAppender) Option { return func(s *Service) { s.events = e } }

// WithWeightedScoring scores by question points instead of equal weights.
func WithWeightedScoring(b bool) Option { return func(s *Service) { s.weighted = b } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func validID(field, v string) error {
	if _, err := uuid.Parse(v); err != nil {
		return errs.NewValidation("invalid "+field, map[string]string{field: "must be a valid UUID"})
	}
	return nil
}

// ---- exams ----

func (s *Service) CreateExam(ctx context.Context, id rbac.Identity, in ExamInput) (Exam, error) {
	if !rbac.Can(id, "exam:create") {
		return Exam{}, errs.NewForbidden()
	}
	fields := map[string]string{}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "this field is required"
	}
	if in.DurationMinutes < 0 {
		fields["durationMinutes"] = "must be 0 or greater"
	}
	if in.StartTime != nil && in.EndTime != nil && !in.EndTime.After(*in.StartTime) {
		fields["endTime"] = "must be after startTime"
	}
	if len(fields) > 0 {
		return Exam{}, errs.NewValidation("invalid exam", fields)
	}

	now := s.now().UTC()
	e := Exam{
		ID:              uuid.NewString(),
		TeacherID:       id.SubjectID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Audience:        in.Audience,
		StartTime:       utc(in.StartTime),
		EndTime:         utc(in.EndTime),
		DurationMinutes: in.DurationMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	return e, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *Service) ListExams(ctx context.Context, opts ListOpts) ([]Exam, error) {
	return s.store.ListExams(ctx, opts)
}

func (s *Service) GetExam(ctx context.Context, examID string) (Exam, error) {
	if err := validID("examId", examID); err != nil {
		return Exam{}, err
	}
	return s.store.GetExam(ctx, examID)
}

// ownedExam loads the exam and fails with Forbidden unless the caller created it.
func (s *Service) ownedExam(ctx context.Context, id rbac.Identity, examID string) (Exam, error) {
	e, err := s.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if id.Role != rbac.RoleTeacher || e.TeacherID != id.SubjectID {
		return Exam{}, errs.NewForbidden()
	}
	return e, nil
}

func (s *Service) DeleteExam(ctx context.Context, id rbac.Identity, examID string) error {
	if _, err := s.ownedExam(ctx, id, examID); err != nil {
		return err
	}
	return s.store.DeleteExam(ctx, examID)
}

// ---- questions ----

func (s *Service) CreateQuestion(ctx context.Context, id rbac.Identity, in QuestionInput) (Question, error) {
	if !rbac.Can(id, "question:create") {
		return Question{}, errs.NewForbidden()
	}
	if _, err := s.ownedExam(ctx, id, in.ExamID); err != nil {
		return Question{}, err
	}

	fields := map[string]string{}
	if strings.TrimSpace(in.Text) == "" {
		fields["text"] = "this field is required"
	}
	if len(in.Options) < 2 {
		fields["options"] = "at least 2 options are required"
	}
	switch {
	case in.AnswerIndex == nil:
		fields["answerIndex"] = "this field is required"
	case *in.AnswerIndex < 0 || *in.AnswerIndex >= len(in.Options):
		fields["answerIndex"] = "must reference one of the options"
	}
	if in.Points < 0 {
		fields["points"] = "must be 0 or greater"
	}
	if len(fields) > 0 {
		return Question{}, errs.NewValidation("invalid question", fields)
	}

	points := in.Points
	if points == 0 {
		points = 1
	}
	atts := in.Attachments
	if atts == nil {
		atts = []Attachment{}
	}
	idx := *in.AnswerIndex
	q := Question{
		ID:          uuid.NewString(),
		ExamID:      in.ExamID,
		Text:        strings.TrimSpace(in.Text),
		Options:     in.Options,
		AnswerIndex: &idx,
		Points:      points,
		Attachments: atts,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return Question{}, err
	}
	return q, nil
}

// ListQuestions returns the exam's questions. The answer index is only
// included for the teacher who owns the exam.
func (s *Service) ListQuestions(ctx context.Context, id rbac.Identity, examID string) ([]Question, error) {
	e, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	qs, err := s.store.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	if id.Role == rbac.RoleTeacher && e.TeacherID == id.SubjectID {
		return qs, nil
	}
	for i := range qs {
		qs[i].AnswerIndex = nil
	}
	return qs, nil
}

// ---- attempts ----

func checkAnswers(answers []Answer) error {
	seen := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		if a.QuestionID == "" {
			return errs.NewValidation("invalid answers", map[string]string{"answers": "questionId is required"})
		}
		if a.SelectedIndex < 0 {
			return errs.NewValidation("invalid answers", map[string]string{"answers": "selectedIndex must be 0 or greater"})
		}
		if _, dup := seen[a.QuestionID]; dup {
			return errs.NewValidation("duplicate answer", map[string]string{
				"answers": "question " + a.QuestionID + " answered more than once",
			})
		}
		seen[a.QuestionID] = struct{}{}
	}
	return nil
}

// stripped drops any client supplied grading fields.
func stripped(answers []Answer) []Answer {
	out := make([]Answer, 0, len(answers))
	for _, a := range answers {
		out = append(out, Answer{QuestionID: a.QuestionID, SelectedIndex: a.SelectedIndex})
	}
	return out
}

func (s *Service) score(ctx context.Context, examID string, answers []Answer) ([]Answer, int, error) {
	qs, err := s.store.ListQuestions(ctx, examID)
	if err != nil {
		return nil, 0, err
	}
	key := make(map[string]grading.Key, len(qs))
	for _, q := range qs {
		if q.AnswerIndex == nil {
			continue
		}
		key[q.ID] = grading.Key{CorrectIndex: *q.AnswerIndex, Points: q.Points}
	}
	in := make([]grading.Answer, 0, len(answers))
	for _, a := range answers {
		in = append(in, grading.Answer{QuestionID: a.QuestionID, SelectedIndex: a.SelectedIndex})
	}
	res, err := grading.Score(in, key, grading.WithWeights(s.weighted))
	if err != nil {
		return nil, 0, err
	}
	out := make([]Answer, 0, len(res.PerAnswer))
	for _, r := range res.PerAnswer {
		out = append(out, Answer{
			QuestionID:    r.QuestionID,
			SelectedIndex: r.SelectedIndex,
			Correct:       r.Correct,
			Score:         r.Score,
		})
	}
	return out, res.TotalScore, nil
}

func (s *Service) openExam(ctx context.Context, examID string, at time.Time) (Exam, error) {
	e, err := s.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if !e.Open(at) {
		return Exam{}, errNotOpen
	}
	return e, nil
}

// SubmitAttempt scores answers and stores them as a new submitted attempt
// owned by the caller.
func (s *Service) SubmitAttempt(ctx context.Context, id rbac.Identity, examID string, answers []Answer) (Attempt, error) {
	if !rbac.Can(id, "attempt:submit") {
		return Attempt{}, errs.NewForbidden()
	}
	now := s.now().UTC()
	if _, err := s.openExam(ctx, examID, now); err != nil {
		return Attempt{}, err
	}
	if err := checkAnswers(answers); err != nil {
		return Attempt{}, err
	}
	scored, total, err := s.score(ctx, examID, answers)
	if err != nil {
		return Attempt{}, err
	}
	a := Attempt{
		ID:          uuid.NewString(),
		ExamID:      examID,
		StudentID:   id.SubjectID,
		Status:      StatusSubmitted,
		Answers:     scored,
		TotalScore:  total,
		StartedAt:   now,
		SubmittedAt: &now,
		CreatedAt:   now,
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	s.recordSubmitted(ctx, a)
	return a, nil
}

func (s *Service) StartAttempt(ctx context.Context, id rbac.Identity, examID string) (Attempt, error) {
	if !rbac.Can(id, "attempt:create") {
		return Attempt{}, errs.NewForbidden()
	}
	now := s.now().UTC()
	if _, err := s.openExam(ctx, examID, now); err != nil {
		return Attempt{}, err
	}
	a := Attempt{
		ID:        uuid.NewString(),
		ExamID:    examID,
		StudentID: id.SubjectID,
		Status:    StatusInProgress,
		Answers:   []Answer{},
		StartedAt: now,
		CreatedAt: now,
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *Service) ownAttempt(ctx context.Context, id rbac.Identity, attemptID string) (Attempt, error) {
	if err := validID("attemptId", attemptID); err != nil {
		return Attempt{}, err
	}
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.StudentID != id.SubjectID {
		return Attempt{}, errs.NewForbidden()
	}
	return a, nil
}

// SaveAnswers merges answers into an in-progress attempt, replacing earlier
// answers to the same question.
func (s *Service) SaveAnswers(ctx context.Context, id rbac.Identity, attemptID string, answers []Answer) (Attempt, error) {
	a, err := s.ownAttempt(ctx, id, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusSubmitted {
		return Attempt{}, errs.NewConflict("attempt already submitted")
	}
	if err := checkAnswers(answers); err != nil {
		return Attempt{}, err
	}

	merged := stripped(a.Answers)
	pos := make(map[string]int, len(merged))
	for i, ans := range merged {
		pos[ans.QuestionID] = i
	}
	for _, ans := range stripped(answers) {
		if i, ok := pos[ans.QuestionID]; ok {
			merged[i] = ans
			continue
		}
		pos[ans.QuestionID] = len(merged)
		merged = append(merged, ans)
	}
	if err := s.store.SaveAnswers(ctx, a.ID, merged); err != nil {
		return Attempt{}, err
	}
	a.Answers = merged
	return a, nil
}

// FinishAttempt scores and submits an in-progress attempt. Submitting an
// already submitted attempt returns it unchanged.
func (s *Service) FinishAttempt(ctx context.Context, id rbac.Identity, attemptID string) (Attempt, error) {
	a, err := s.ownAttempt(ctx, id, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusSubmitted {
		return a, nil
	}
	scored, total, err := s.score(ctx, a.ExamID, a.Answers)
	if err != nil {
		return Attempt{}, err
	}
	now := s.now().UTC()
	a.Status = StatusSubmitted
	a.Answers = scored
	a.TotalScore = total
	a.SubmittedAt = &now
	if err := s.store.MarkSubmitted(ctx, a); err != nil {
		if errs.Is(err, errs.Conflict) {
			// lost a race with a concurrent submit
			return s.store.GetAttempt(ctx, a.ID)
		}
		return Attempt{}, err
	}
	s.recordSubmitted(ctx, a)
	return a, nil
}

func (s *Service) recordSubmitted(ctx context.Context, a Attempt) {
	if s.events == nil {
		return
	}
	ev, err := syncx.NewEvent(syncx.TypeAttemptSubmitted, a.ID, map[string]any{
		"examId":     a.ExamID,
		"studentId":  a.StudentID,
		"totalScore": a.TotalScore,
	})
	if err == nil {
		err = s.events.Append(ctx, ev)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("attempt_id", a.ID).Msg("record attempt event")
	}
}

func (s *Service) GetAttempt(ctx context.Context, id rbac.Identity, attemptID string) (Attempt, error) {
	if err := validID("attemptId", attemptID); err != nil {
		return Attempt{}, err
	}
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.StudentID != id.SubjectID && !rbac.Can(id, "attempt:view-all") {
		return Attempt{}, errs.NewForbidden()
	}
	return a, nil
}

// ListAttempts lists attempts newest first. Callers without attempt:view-all
// only ever see their own.
func (s *Service) ListAttempts(ctx context.Context, id rbac.Identity, opts AttemptListOpts) ([]Attempt, error) {
	if opts.ExamID != "" {
		if err := validID("examId", opts.ExamID); err != nil {
			return nil, err
		}
	}
	if !rbac.Can(id, "attempt:view-all") {
		opts.StudentID = id.SubjectID
	}
	return s.store.ListAttempts(ctx, opts)
}

// BestScore is the caller's highest submitted score on the exam.
func (s *Service) BestScore(ctx context.Context, id rbac.Identity, examID string) (int, error) {
	if _, err := s.GetExam(ctx, examID); err != nil {
		return 0, err
	}
	scores, err := s.store.SubmittedScores(ctx, examID, id.SubjectID)
	if err != nil {
		return 0, err
	}
	best, ok := grading.Best(scores)
	if !ok {
		return 0, errs.NewNotFound("score")
	}
	return best, nil
}
