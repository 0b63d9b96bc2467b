package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/api/respond"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type examRequest struct {
	Title           string     `json:"title" validate:"required"`
	Description     string     `json:"description"`
	Audience        string     `json:"audience"`
	StartTime       *time.Time `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	DurationMinutes int        `json:"durationMinutes" validate:"gte=0"`
}

func identity(r *http.Request) rbac.Identity {
	ctx := r.Context()
	return rbac.Identity{SubjectID: rbac.SubjectFromContext(ctx), Role: rbac.RoleFromContext(ctx)}
}

// GET /exams?teacherId=&limit=&offset=
func ListExamsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := pageFrom(r)
		list, err := svc.ListExams(r.Context(), exam.ListOpts{
			TeacherID: r.URL.Query().Get("teacherId"),
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

// POST /exams
func CreateExamHandler(svc *exam.Service, val *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req examRequest
		if err := val.decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		e, err := svc.CreateExam(r.Context(), identity(r), exam.ExamInput{
			Title:           req.Title,
			Description:     req.Description,
			Audience:        req.Audience,
			StartTime:       req.StartTime,
			EndTime:         req.EndTime,
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, e)
	}
}

// GET /exams/{examID}
func GetExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.GetExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, e)
	}
}

// DELETE /exams/{examID}
func DeleteExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteExam(r.Context(), identity(r), chi.URLParam(r, "examID")); err != nil {
			respond.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /exams/{examID}/questions
func ListQuestionsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := svc.ListQuestions(r.Context(), identity(r), chi.URLParam(r, "examID"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, qs)
	}
}

// GET /exams/{examID}/best-score
func BestScoreHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID := chi.URLParam(r, "examID")
		best, err := svc.BestScore(r.Context(), identity(r), examID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{"examId": examID, "bestScore": best})
	}
}

type questionRequest struct {
	ExamID      string            `json:"examId" validate:"required"`
	Text        string            `json:"text" validate:"required"`
	Options     []string          `json:"options" validate:"required,min=2,dive,required"`
	AnswerIndex *int              `json:"answerIndex" validate:"required,gte=0"`
	Points      float64           `json:"points" validate:"gte=0"`
	Attachments []exam.Attachment `json:"attachments"`
}

// POST /questions
func CreateQuestionHandler(svc *exam.Service, val *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req questionRequest
		if err := val.decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		q, err := svc.CreateQuestion(r.Context(), identity(r), exam.QuestionInput{
			ExamID:      req.ExamID,
			Text:        req.Text,
			Options:     req.Options,
			AnswerIndex: req.AnswerIndex,
			Points:      req.Points,
			Attachments: req.Attachments,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, q)
	}
}
