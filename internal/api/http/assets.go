package http

import (
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-exams/internal/api/respond"
	"github.com/mind-engage/mindengage-exams/internal/errs"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/storage"
)

const maxUpload = 10 << 20

// MountAssets serves question attachments. Uploads are limited to teachers by
// the caller's router.
func MountAssets(r chi.Router, bs storage.BlobStore, upload func(http.Handler) http.Handler) {
	// POST /assets  (multipart "file")
	r.With(upload).Post("/", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			respond.Error(w, r, errs.NewValidation("file required", map[string]string{"file": requiredText}))
			return
		}
		defer f.Close()

		name := path.Base(strings.ReplaceAll(hdr.Filename, "\\", "/"))
		if name == "." || name == "/" {
			name = "upload.bin"
		}
		key := "questions/" + uuid.NewString() + "/" + name
		if key, err = bs.Put(r.Context(), key, f); err != nil {
			respond.Error(w, r, err)
			return
		}
		mt := hdr.Header.Get("Content-Type")
		if mt == "" {
			mt = mime.TypeByExtension(filepath.Ext(name))
		}
		respond.JSON(w, http.StatusCreated, exam.Attachment{
			Filename: name,
			URL:      bs.URL(key),
			Mimetype: mt,
			Size:     hdr.Size,
		})
	})

	// GET /assets/*  -> the blob at whatever follows /assets/
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(r.Context(), key)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(filepath.Ext(key))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		_, _ = io.Copy(w, rc)
	})
}
