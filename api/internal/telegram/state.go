package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// lockChat takes the store's per-chat lease, or answers the update and returns
// nil when the chat is busy or the store cannot be reached.
func (r *Router) lockChat(ctx context.Context, cid int64, upd tgbotapi.Update) func() {
	unlock, ok, err := r.Sessions.TryLock(ctx, cid)
	if err != nil {
		r.logger().Error("chat lease failed", zap.Int64("chat_id", cid), zap.Error(err))
		r.send(cid, "⚠️ Session storage is unavailable. Please try again shortly.")
		return nil
	}
	if !ok {
		r.refuseBusy(upd)
		return nil
	}
	return unlock
}
