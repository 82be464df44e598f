package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/report"
	"eye-report/api/internal/session"
)

// BotAPI is the subset of *tgbotapi.BotAPI the router uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot      BotAPI
	Service  *report.Service
	Sessions session.Store
	Log      *zap.Logger

	ShareBaseURL  string
	MaxImageBytes int64

	// Fetch downloads a Telegram file; nil means plain HTTP GET.
	Fetch  func(ctx context.Context, url string) ([]byte, error)
	Health func(ctx context.Context) map[string]string
}

const helpText = "Send a scan as a photo (capture) or as an image file (upload).\n" +
	"Commands: /modality, /style, /reset, /health"

// HandleUpdate processes one update. Updates for a chat that is busy, here or
// in another replica sharing the store, are refused.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	cid, ok := chatOf(upd)
	if !ok {
		return
	}
	unlock := r.lockChat(ctx, cid, upd)
	if unlock == nil {
		return
	}
	defer unlock()

	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	msg := upd.Message
	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case msg.Document != nil:
		r.acceptDocument(ctx, msg)
	default:
		r.send(cid, helpText)
	}
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start":
		r.send(cid, report.Disclaimer+"\n\n"+helpText)
		r.sendWithKeyboard(cid, "Choose the imaging modality:", modalityKeyboard(r.currentModality(ctx, cid)))
	case "modality":
		r.sendWithKeyboard(cid, "Choose the imaging modality:", modalityKeyboard(r.currentModality(ctx, cid)))
	case "style":
		s, err := r.Sessions.Get(ctx, cid)
		if err != nil {
			r.sendError(cid, err)
			return
		}
		r.sendWithKeyboard(cid, "Choose the reporting style:", styleKeyboard(s.Style))
	case "reset":
		if err := r.Sessions.Delete(ctx, cid); err != nil {
			r.sendError(cid, err)
			return
		}
		r.send(cid, "Session cleared. Send a new scan.")
	case "health":
		r.send(cid, r.healthText(ctx))
	default:
		r.send(cid, "Unknown command.\n"+helpText)
	}
}

func (r *Router) healthText(ctx context.Context) string {
	if r.Health == nil {
		return "✅ OK"
	}
	h := r.Health(ctx)
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("✅ OK")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, h[k])
	}
	return b.String()
}

func (r *Router) refuseBusy(upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		_, _ = r.Bot.Request(tgbotapi.NewCallback(upd.CallbackQuery.ID, "Still working on the previous report…"))
		return
	}
	r.send(upd.Message.Chat.ID, "⏳ Still working on the previous report. Please wait.")
}

func (r *Router) currentModality(ctx context.Context, cid int64) string {
	s, err := r.Sessions.Get(ctx, cid)
	if err != nil {
		return ""
	}
	return string(s.Modality)
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) sendError(chatID int64, err error) {
	r.logger().Error("chat request failed", zap.Int64("chat_id", chatID), zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
	r.send(chatID, "⚠️ "+apperr.Message(err))
}

func (r *Router) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func chatOf(upd tgbotapi.Update) (int64, bool) {
	if cb := upd.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil {
			return 0, false
		}
		return cb.Message.Chat.ID, true
	}
	if upd.Message == nil || upd.Message.Chat == nil {
		return 0, false
	}
	return upd.Message.Chat.ID, true
}
