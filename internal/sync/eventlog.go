package syncx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

const TypeAttemptSubmitted = "AttemptSubmitted"

type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Ref       string // natural key, e.g. attempt id
	DataJSON  string
	CreatedAt int64
}

// NewEvent builds an event with data encoded as JSON.
func NewEvent(typ, ref string, data any) (Event, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Event{}, errors.Wrap(err, "encode event data")
	}
	return Event{Type: typ, Ref: ref, DataJSON: string(b)}, nil
}

type EventRepo struct {
	db     db.Provider
	siteID string
	now    func() time.Time
}

func NewEventRepo(p db.Provider, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: p, siteID: siteID, now: time.Now}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	site := e.SiteID
	if site == "" {
		site = r.siteID
	}
	_, err = conn.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, ref, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		site, e.Type, e.Ref, e.DataJSON, r.now().UnixNano())
	return errors.Wrap(err, "append event")
}

// Since returns events with seq greater than after, oldest first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := conn.QueryContext(ctx,
		`SELECT seq, site_id, typ, ref, data, created_at FROM event_log
		 WHERE seq > $1 ORDER BY seq ASC LIMIT $2`, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Ref, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "list events")
}
