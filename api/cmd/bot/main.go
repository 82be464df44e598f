package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"eye-report/api/internal/app"
	"eye-report/api/internal/config"
	"eye-report/api/internal/httpserver"
	"eye-report/api/internal/logger"
	"eye-report/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		lg.Fatal("missing required env TELEGRAM_BOT_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg, "telegram")
	if err != nil {
		lg.Fatal("init failed", zap.Error(err))
	}
	defer a.Close()
	a.WarmReference(ctx)

	sessions, err := a.Sessions(ctx)
	if err != nil {
		lg.Fatal("session store", zap.Error(err))
	}

	// --- Telegram bot ---
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		lg.Fatal("telegram", zap.Error(err))
	}
	bot.Debug = false
	lg.Info("bot authorized", zap.String("username", bot.Self.UserName),
		zap.String("engine", a.Service.Model()))

	r := &telegram.Router{
		Bot:           bot,
		Service:       a.Service,
		Sessions:      sessions,
		Log:           lg,
		ShareBaseURL:  cfg.ShareBaseURL,
		MaxImageBytes: cfg.MaxImageBytes,
		Health:        a.Health,
	}

	// DefaultServeMux is shared with bot.ListenForWebhook.
	srv := httpserver.New(cfg.Addr(), a.Health)
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	// --- Choose mode: Webhook vs Polling ---
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(ctx, lg, srv, bot, r, webhookURL)
	} else {
		startPollingMode(ctx, lg, srv, bot, r)
	}
	lg.Info("bot stopped")
}

// ---------------- Modes -----------------

func startWebhookMode(ctx context.Context, lg *zap.Logger, srv *http.Server, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string) {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		lg.Fatal("webhook", zap.Error(err))
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		lg.Fatal("set webhook", zap.Error(err))
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				go r.HandleUpdate(ctx, upd)
			}
		}
	}()

	lg.Info("webhook listening", zap.String("addr", srv.Addr), zap.String("path", path))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Fatal("http server", zap.Error(err))
	}
}

func startPollingMode(ctx context.Context, lg *zap.Logger, srv *http.Server, bot *tgbotapi.BotAPI, r *telegram.Router) {
	// healthz only; polling does not need the listener
	go func() {
		lg.Info("health server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server", zap.Error(err))
		}
	}()

	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		lg.Warn("delete webhook", zap.Error(err))
	}
	runPolling(ctx, lg, bot, func(upd tgbotapi.Update) {
		go r.HandleUpdate(ctx, upd)
	})
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

type updatesGetter interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

func runPolling(ctx context.Context, lg *zap.Logger, bot updatesGetter, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			lg.Info("polling: context cancelled")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			lg.Warn("polling error", zap.Error(err), zap.Duration("retry_in", d))
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ---------------- Helpers -----------------

// shortHash is an FNV-1a of the token, used as an unguessable webhook path.
func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
