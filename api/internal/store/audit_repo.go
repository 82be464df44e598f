package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/report"
)

const AuditSchema = `
create table if not exists dispatch_audit (
    id           uuid primary key,
    created_at   timestamptz not null,
    channel      text not null,
    modality     text not null,
    style        text not null,
    source       text not null,
    provider     text not null,
    model        text not null,
    image_sha256 text not null,
    image_bytes  integer not null,
    outcome      text not null,
    error_kind   text not null default '',
    duration_ms  integer not null
)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AuditEntry is the metadata kept for one dispatch. Report text and image bytes are never stored.
type AuditEntry struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	Channel     string
	Modality    string
	Style       string
	Source      string
	Provider    string
	Model       string
	ImageSHA256 string
	ImageBytes  int
	Outcome     string
	ErrorKind   string
	Duration    time.Duration
}

type AuditRepo struct{ DB execer }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

func (r *AuditRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, AuditSchema)
	return err
}

func (r *AuditRepo) Insert(ctx context.Context, e AuditEntry) error {
	const q = `
insert into dispatch_audit(id, created_at, channel, modality, style, source, provider, model,
                           image_sha256, image_bytes, outcome, error_kind, duration_ms)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.DB.ExecContext(ctx, q,
		e.ID, e.CreatedAt, e.Channel, e.Modality, e.Style, e.Source, e.Provider, e.Model,
		e.ImageSHA256, e.ImageBytes, e.Outcome, e.ErrorKind, e.Duration.Milliseconds())
	return err
}

// EntryFromOutcome converts a finished dispatch into an audit row.
func EntryFromOutcome(o report.Outcome) AuditEntry {
	e := AuditEntry{
		ID:          uuid.New(),
		CreatedAt:   o.StartedAt.UTC(),
		Channel:     o.Channel,
		Provider:    o.Provider,
		Model:       o.Model,
		ImageSHA256: o.ImageSHA256,
		ImageBytes:  o.ImageBytes,
		Outcome:     "succeeded",
		Duration:    o.Duration,
	}
	if s := o.Session; s != nil {
		e.Modality = string(s.Modality)
		e.Style = string(s.Style)
		e.Source = string(s.Source)
	}
	if o.Err != nil {
		e.Outcome = "failed"
		e.ErrorKind = string(apperr.KindOf(o.Err))
	}
	return e
}

// AuditRecorder is a report.Observer writing to dispatch_audit. Write errors are logged, never returned.
type AuditRecorder struct {
	Repo *AuditRepo
	Log  *zap.Logger
}

func (a *AuditRecorder) Observe(ctx context.Context, o report.Outcome) {
	e := EntryFromOutcome(o)
	if err := a.Repo.Insert(context.WithoutCancel(ctx), e); err != nil && a.Log != nil {
		a.Log.Warn("audit insert failed", zap.String("id", e.ID.String()), zap.Error(err))
	}
}
