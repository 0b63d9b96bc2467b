package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/api/respond"
	"github.com/mind-engage/mindengage-exams/internal/errs"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

type EventReader interface {
	Since(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

type eventResponse struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"siteId"`
	Type      string          `json:"type"`
	Ref       string          `json:"ref"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// GET /events?after=&limit=
// Submission events oldest first, starting after the given sequence number.
func ListEventsHandler(events EventReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var after int64
		if s := q.Get("after"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v < 0 {
				respond.Error(w, r, errs.NewValidation("invalid after", map[string]string{"after": "must be a non-negative integer"}))
				return
			}
			after = v
		}
		p := pageFrom(r)
		list, err := events.Since(r.Context(), after, p.Limit)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		out := make([]eventResponse, 0, len(list))
		for _, e := range list {
			out = append(out, eventResponse{
				Seq:       e.Seq,
				SiteID:    e.SiteID,
				Type:      e.Type,
				Ref:       e.Ref,
				Data:      json.RawMessage(e.DataJSON),
				CreatedAt: time.Unix(0, e.CreatedAt).UTC(),
			})
		}
		p.setHeaders(w)
		respond.JSON(w, http.StatusOK, out)
	}
}
