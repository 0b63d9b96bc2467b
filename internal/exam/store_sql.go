package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/errs"
)

type SQLStore struct {
	db db.Provider
}

func NewSQLStore(p db.Provider) *SQLStore { return &SQLStore{db: p} }

func nanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func withTx(ctx context.Context, conn *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "commit tx")
	}()
	return fn(tx)
}

// ---- exams ----

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) error {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `INSERT INTO exams
		(id,teacher_id,title,description,audience,start_time,end_time,duration_minutes,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.TeacherID, e.Title, e.Description, e.Audience, nanos(e.StartTime), nanos(e.EndTime),
		e.DurationMinutes, e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errs.NewConflict("exam already exists")
		}
		return errors.Wrap(err, "insert exam")
	}
	return nil
}

const selectExam = `SELECT id,teacher_id,title,description,audience,start_time,end_time,
	duration_minutes,created_at,updated_at FROM exams`

type scanner interface {
	Scan(dest ...any) error
}

func scanExam(row scanner) (Exam, error) {
	var (
		e                    Exam
		start, end           sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&e.ID, &e.TeacherID, &e.Title, &e.Description, &e.Audience, &start, &end,
		&e.DurationMinutes, &createdAt, &updatedAt); err != nil {
		return Exam{}, err
	}
	e.StartTime = fromNanos(start)
	e.EndTime = fromNanos(end)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return e, nil
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return Exam{}, err
	}
	e, err := scanExam(conn.QueryRowContext(ctx, selectExam+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Exam{}, errs.NewNotFound("exam")
		}
		return Exam{}, errors.Wrap(err, "select exam")
	}
	return e, nil
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]Exam, error) {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if opts.TeacherID != "" {
		args = append(args, opts.TeacherID)
		where = append(where, fmt.Sprintf("teacher_id=$%d", len(args)))
	}
	q := selectExam
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	q, args = paginate(q, args, opts.Limit, opts.Offset)

	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list exams")
	}
	defer rows.Close()
	out := []Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan exam")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "list exams")
}

func paginate(q string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 {
		return q, args
	}
	args = append(args, limit, offset)
	return q + fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func (s *SQLStore) DeleteExam(ctx context.Context, id string) error {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	// explicit cascade; sqlite only honors ON DELETE CASCADE with foreign_keys on
	return withTx(ctx, conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE exam_id=$1`, id); err != nil {
			return errors.Wrap(err, "delete attempts")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id=$1`, id); err != nil {
			return errors.Wrap(err, "delete questions")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM exams WHERE id=$1`, id)
		if err != nil {
			return errors.Wrap(err, "delete exam")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.NewNotFound("exam")
		}
		return nil
	})
}

// ---- questions ----

func (s *SQLStore) CreateQuestion(ctx context.Context, q Question) error {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	if q.AnswerIndex == nil {
		return errs.NewValidation("answerIndex is required", map[string]string{"answerIndex": "this field is required"})
	}
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return errors.Wrap(err, "encode options")
	}
	atts := q.Attachments
	if atts == nil {
		atts = []Attachment{}
	}
	attJSON, err := json.Marshal(atts)
	if err != nil {
		return errors.Wrap(err, "encode attachments")
	}
	_, err = conn.ExecContext(ctx, `INSERT INTO questions
		(id,exam_id,text,options_json,answer_index,points,attachments_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		q.ID, q.ExamID, q.Text, string(opts), *q.AnswerIndex, q.Points, string(attJSON), q.CreatedAt.UnixNano())
	if err != nil {
		return errors.Wrap(err, "insert question")
	}
	return nil
}

func (s *SQLStore) ListQuestions(ctx context.Context, examID string) ([]Question, error) {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT id,exam_id,text,options_json,answer_index,points,attachments_json,created_at
		FROM questions WHERE exam_id=$1 ORDER BY created_at ASC, id ASC`, examID)
	if err != nil {
		return nil, errors.Wrap(err, "list questions")
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		var (
			q                Question
			optJSON, attJSON string
			answerIdx        int
			createdAt        int64
		)
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &optJSON, &answerIdx, &q.Points, &attJSON, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan question")
		}
		if err := json.Unmarshal([]byte(optJSON), &q.Options); err != nil {
			return nil, errors.Wrap(err, "decode options")
		}
		if err := json.Unmarshal([]byte(attJSON), &q.Attachments); err != nil {
			q.Attachments = []Attachment{}
		}
		q.AnswerIndex = &answerIdx
		q.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, q)
	}
	return out, errors.Wrap(rows.Err(), "list questions")
}

// ---- attempts ----

func encodeAnswers(answers []Answer) (string, error) {
	if answers == nil {
		answers = []Answer{}
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return "", errors.Wrap(err, "encode answers")
	}
	return string(b), nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	answers, err := encodeAnswers(a.Answers)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `INSERT INTO attempts
		(id,exam_id,student_id,status,answers_json,total_score,started_at,submitted_at,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.ExamID, a.StudentID, string(a.Status), answers, a.TotalScore,
		a.StartedAt.UnixNano(), nanos(a.SubmittedAt), a.CreatedAt.UnixNano())
	if err != nil {
		return errors.Wrap(err, "insert attempt")
	}
	return nil
}

const selectAttempt = `SELECT id,exam_id,student_id,status,answers_json,total_score,started_at,submitted_at,created_at FROM attempts`

func scanAttempt(row scanner) (Attempt, error) {
	var (
		a                    Attempt
		status, answers      string
		startedAt, createdAt int64
		submittedAt          sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &status, &answers, &a.TotalScore,
		&startedAt, &submittedAt, &createdAt); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil || a.Answers == nil {
		a.Answers = []Answer{}
	}
	a.StartedAt = time.Unix(0, startedAt).UTC()
	a.SubmittedAt = fromNanos(submittedAt)
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return Attempt{}, err
	}
	a, err := scanAttempt(conn.QueryRowContext(ctx, selectAttempt+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, errs.NewNotFound("attempt")
		}
		return Attempt{}, errors.Wrap(err, "select attempt")
	}
	return a, nil
}

// updateInProgress runs an UPDATE guarded by status='in_progress' and tells
// a missing attempt apart from one that is already submitted.
func (s *SQLStore) updateInProgress(ctx context.Context, conn *sql.DB, id, query string, args ...any) error {
	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "update attempt")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.GetAttempt(ctx, id); err != nil {
		return err
	}
	return errs.NewConflict("attempt already submitted")
}

func (s *SQLStore) SaveAnswers(ctx context.Context, attemptID string, answers []Answer) error {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeAnswers(answers)
	if err != nil {
		return err
	}
	return s.updateInProgress(ctx, conn, attemptID,
		`UPDATE attempts SET answers_json=$1 WHERE id=$2 AND status=$3`,
		enc, attemptID, string(StatusInProgress))
}

func (s *SQLStore) MarkSubmitted(ctx context.Context, a Attempt) error {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	enc, err := encodeAnswers(a.Answers)
	if err != nil {
		return err
	}
	return s.updateInProgress(ctx, conn, a.ID,
		`UPDATE attempts SET status=$1, answers_json=$2, total_score=$3, submitted_at=$4
		 WHERE id=$5 AND status=$6`,
		string(StatusSubmitted), enc, a.TotalScore, nanos(a.SubmittedAt), a.ID, string(StatusInProgress))
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("exam_id", opts.ExamID)
	add("student_id", opts.StudentID)
	add("status", string(opts.Status))

	q := selectAttempt
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	q, args = paginate(q, args, opts.Limit, opts.Offset)

	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list attempts")
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan attempt")
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "list attempts")
}

func (s *SQLStore) SubmittedScores(ctx context.Context, examID, studentID string) ([]int, error) {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx,
		`SELECT total_score FROM attempts WHERE exam_id=$1 AND student_id=$2 AND status=$3`,
		examID, studentID, string(StatusSubmitted))
	if err != nil {
		return nil, errors.Wrap(err, "select scores")
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan score")
		}
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "select scores")
}
