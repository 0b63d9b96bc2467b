package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/api/respond"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type answerRequest struct {
	QuestionID    string `json:"questionId" validate:"required"`
	SelectedIndex int    `json:"selectedIndex" validate:"gte=0"`
}

type submitRequest struct {
	ExamID  string          `json:"examId" validate:"required"`
	Answers []answerRequest `json:"answers" validate:"dive"`
}

type startRequest struct {
	ExamID string `json:"examId" validate:"required"`
}

type saveAnswersRequest struct {
	Answers []answerRequest `json:"answers" validate:"required,dive"`
}

func toAnswers(in []answerRequest) []exam.Answer {
	out := make([]exam.Answer, 0, len(in))
	for _, a := range in {
		out = append(out, exam.Answer{QuestionID: a.QuestionID, SelectedIndex: a.SelectedIndex})
	}
	return out
}

// POST /attempts
// Scores the answers and stores a submitted attempt for the caller.
func SubmitAttemptHandler(svc *exam.Service, val *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := val.decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		a, err := svc.SubmitAttempt(r.Context(), identity(r), req.ExamID, toAnswers(req.Answers))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, a)
	}
}

// POST /attempts/start
func StartAttemptHandler(svc *exam.Service, val *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := val.decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		a, err := svc.StartAttempt(r.Context(), identity(r), req.ExamID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, a)
	}
}

// PUT /attempts/{attemptID}/answers
func SaveAnswersHandler(svc *exam.Service, val *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveAnswersRequest
		if err := val.decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		a, err := svc.SaveAnswers(r.Context(), identity(r), chi.URLParam(r, "attemptID"), toAnswers(req.Answers))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, a)
	}
}

// POST /attempts/{attemptID}/submit
func FinishAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.FinishAttempt(r.Context(), identity(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, a)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.GetAttempt(r.Context(), identity(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, a)
	}
}

// GET /attempts?examId=&studentId=&status=&limit=&offset=
// Callers without attempt:view-all only see their own attempts.
func ListAttemptsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		p := pageFrom(r)
		list, err := svc.ListAttempts(r.Context(), identity(r), exam.AttemptListOpts{
			ExamID:    q.Get("examId"),
			StudentID: q.Get("studentId"),
			Status:    exam.Status(q.Get("status")),
			Limit:     p.Limit,
			Offset:    p.Offset,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		p.setHeaders(w)
		respond.JSON(w, http.StatusOK, list)
	}
}
