package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/logging"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/storage"
	"github.com/mind-engage/mindengage-exams/internal/user"
)

type Deps struct {
	Log    zerolog.Logger
	Tokens *auth.Service
	Users  *user.Service
	Exams  *exam.Service
	Events EventReader
	Blobs  storage.BlobStore
	Store  Pinger

	CORSOrigins    []string
	AllowDevToken  bool
	DevTokenTTL    time.Duration
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	val := NewValidator()

	r := chi.NewRouter()
	r.Use(middleware.RealIP, logging.Middleware(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", HealthzHandler)
	r.Get("/readyz", ReadyzHandler(d.Store))

	r.Route("/auth", func(ar chi.Router) {
		ar.Post("/register", RegisterHandler(d.Users, val))
		ar.Post("/login", LoginHandler(d.Users, d.Tokens, val))
		if d.AllowDevToken {
			ar.Get("/dev-token", DevTokenHandler(d.Tokens, d.DevTokenTTL))
		}
		ar.With(auth.JWTMiddleware(d.Tokens)).Get("/me", MeHandler(d.Users))
	})

	// Protected API (JWT → identity in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Tokens))
		teacher := rbac.RequireRole(rbac.RoleTeacher)

		pr.With(rbac.Require("exam:view")).Get("/exams", ListExamsHandler(d.Exams))
		pr.With(teacher).Post("/exams", CreateExamHandler(d.Exams, val))
		pr.With(rbac.Require("exam:view")).Get("/exams/{examID}", GetExamHandler(d.Exams))
		pr.With(teacher).Delete("/exams/{examID}", DeleteExamHandler(d.Exams))
		pr.With(rbac.Require("exam:view")).Get("/exams/{examID}/questions", ListQuestionsHandler(d.Exams))
		pr.Get("/exams/{examID}/best-score", BestScoreHandler(d.Exams))

		pr.With(teacher).Post("/questions", CreateQuestionHandler(d.Exams, val))

		pr.With(rbac.Require("attempt:submit")).Post("/attempts", SubmitAttemptHandler(d.Exams, val))
		pr.With(rbac.Require("attempt:create")).Post("/attempts/start", StartAttemptHandler(d.Exams, val))
		pr.With(rbac.Require("attempt:save")).Put("/attempts/{attemptID}/answers", SaveAnswersHandler(d.Exams, val))
		pr.With(rbac.Require("attempt:submit")).Post("/attempts/{attemptID}/submit", FinishAttemptHandler(d.Exams))
		// ownership is checked by the service
		pr.Get("/attempts/{attemptID}", GetAttemptHandler(d.Exams))
		pr.Get("/attempts", ListAttemptsHandler(d.Exams))

		if d.Events != nil {
			pr.With(rbac.Require("event:view")).Get("/events", ListEventsHandler(d.Events))
		}

		pr.Route("/assets", func(ar chi.Router) {
			MountAssets(ar, d.Blobs, rbac.Require("asset:upload"))
		})
	})

	return r
}
