package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/config"
	"eye-report/api/internal/prompt"
	"eye-report/api/internal/reference"
	"eye-report/api/internal/report"
	"eye-report/api/internal/session"
	"eye-report/api/internal/store"
	"eye-report/api/internal/vision"
	"eye-report/api/internal/vision/anthropic"
	"eye-report/api/internal/vision/gemini"
	"eye-report/api/internal/vision/openai"
)

// App is the wiring shared by both binaries.
type App struct {
	Cfg     *config.Config
	Log     *zap.Logger
	Engine  vision.Engine
	Service *report.Service
	DB      *sql.DB
	Redis   *redis.Client
}

// NewEngine builds the engine for cfg.Provider.
func NewEngine(ctx context.Context, cfg *config.Config) (vision.Engine, error) {
	switch cfg.Provider {
	case "groq", "openai":
		return openai.New(cfg.Provider, cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "gemini":
		e, err := gemini.New(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, apperr.StartupConfiguration("gemini engine", err)
		}
		return e, nil
	case "anthropic":
		return anthropic.New(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	default:
		return nil, apperr.StartupConfiguration(fmt.Sprintf("unknown provider %q", cfg.Provider), nil)
	}
}

// New wires the report service for one channel ("telegram", "http").
// Postgres audit is enabled when a DSN resolves.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, channel string) (*App, error) {
	eng, err := NewEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	corpus := reference.NewCorpus(reference.NewLoader(cfg.ReferencePath, cfg.ReferenceMaxPages, cfg.ReferenceMaxChars))
	d := vision.NewDispatcher(eng, vision.DispatcherOptions{
		Temperature:      cfg.Temperature,
		ValidateHeadings: cfg.ValidateHeadings,
	})
	svc := report.NewService(corpus, prompt.NewAssembler(cfg.ReferenceMaxChars), d,
		report.GatePolicy{RequireAcknowledgment: cfg.RequireAcknowledgment})
	svc.Channel = channel

	a := &App{Cfg: cfg, Log: log, Engine: eng, Service: svc}

	if dsn := cfg.ResolveDSN(); dsn != "" {
		db, err := store.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		repo := store.NewAuditRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("audit schema: %w", err)
		}
		svc.WithObserver(&store.AuditRecorder{Repo: repo, Log: log})
		a.DB = db
		log.Info("dispatch audit enabled", zap.String("db", store.SafeDSNSummary(dsn)))
	}
	return a, nil
}

// WarmReference loads the reference corpus and logs when it is unavailable.
func (a *App) WarmReference(ctx context.Context) {
	c := a.Service.Corpus()
	text := c.Text(ctx)
	if err := c.Err(); err != nil {
		a.Log.Warn("reference document unavailable, continuing without it",
			zap.String("path", a.Cfg.ReferencePath), zap.Error(err))
		return
	}
	a.Log.Info("reference loaded", zap.Int("chars", len([]rune(text))))
}

// Sessions returns a Redis store when REDIS_URL is set, otherwise an in-memory one.
func (a *App) Sessions(ctx context.Context) (session.Store, error) {
	if a.Cfg.RedisURL == "" {
		return session.NewMemoryStore(), nil
	}
	rdb, err := session.Connect(ctx, a.Cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.Redis = rdb
	return session.NewRedisStore(rdb, a.Cfg.SessionTTL), nil
}

// Health reports dependency status: "ok" or an error text per component.
func (a *App) Health(ctx context.Context) map[string]string {
	out := map[string]string{"engine": a.Engine.Name() + "/" + a.Engine.GetModel()}
	c := a.Service.Corpus()
	c.Text(ctx)
	if err := c.Err(); err != nil {
		out["reference"] = "unavailable: " + apperr.Message(err)
	} else {
		out["reference"] = "ok"
	}
	if a.DB != nil {
		if err := a.DB.PingContext(ctx); err != nil {
			out["db"] = err.Error()
		} else {
			out["db"] = "ok"
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			out["redis"] = err.Error()
		} else {
			out["redis"] = "ok"
		}
	}
	return out
}

func (a *App) Close() {
	if c, ok := a.Engine.(io.Closer); ok {
		_ = c.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.Log.Sync()
}
