package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/modality"
	"eye-report/api/internal/report"
)

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	cid := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	s, err := r.Sessions.Get(ctx, cid)
	if err != nil {
		r.sendError(cid, err)
		return
	}

	switch data := cb.Data; {
	case strings.HasPrefix(data, cbModality):
		m, err := modality.Parse(strings.TrimPrefix(data, cbModality))
		if err == nil {
			err = s.SelectModality(m)
		}
		if !r.save(ctx, cid, s, err) {
			return
		}
		r.editKeyboard(cid, msgID, modalityKeyboard(string(m)))
		r.send(cid, "Modality: "+m.String())

	case strings.HasPrefix(data, cbStyle):
		st, err := modality.ParseStyle(strings.TrimPrefix(data, cbStyle))
		if err == nil {
			err = s.SelectStyle(st)
		}
		if !r.save(ctx, cid, s, err) {
			return
		}
		r.editKeyboard(cid, msgID, styleKeyboard(st))
		r.send(cid, "Reporting style: "+st.String())

	case data == cbAck:
		if !r.save(ctx, cid, s, s.SetAcknowledged(!s.Acknowledged)) {
			return
		}
		r.editKeyboard(cid, msgID, sessionKeyboard(s, r.Service.Policy()))

	case data == cbAnalyze:
		r.analyze(ctx, cid, msgID, s)
	}
}

// save persists s unless err is set; err is reported to the chat.
func (r *Router) save(ctx context.Context, cid int64, s *report.Session, err error) bool {
	if err == nil {
		err = r.Sessions.Save(ctx, cid, s)
	}
	if err != nil {
		r.sendError(cid, err)
		return false
	}
	return true
}

func (r *Router) analyze(ctx context.Context, cid int64, msgID int, s *report.Session) {
	if err := s.CanBegin(r.Service.Policy()); err != nil {
		r.send(cid, "⚠️ "+apperr.Message(err))
		return
	}
	r.editKeyboard(cid, msgID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	r.send(cid, "⏳ Generating clinical report…")
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(cid, tgbotapi.ChatTyping))

	text, err := r.Service.Run(ctx, s)
	if serr := r.Sessions.Save(ctx, cid, s); serr != nil {
		r.logger().Warn("session save failed", zap.Int64("chat_id", cid), zap.Error(serr))
	}
	if err != nil {
		r.logger().Warn("analysis failed", zap.Int64("chat_id", cid),
			zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
		r.send(cid, "❌ Analysis failed: "+apperr.Message(err))
		r.sendWithKeyboard(cid, "You can try again.", sessionKeyboard(s, r.Service.Policy()))
		return
	}
	r.logger().Info("report generated", zap.Int64("chat_id", cid),
		zap.String("modality", string(s.Modality)), zap.String("model", r.Service.Model()))
	r.sendReport(cid, text)
}

// sendReport delivers the report in chunks. If any chunk is rejected the chunks
// already sent are deleted, so the chat never keeps a partial report.
func (r *Router) sendReport(cid int64, text string) {
	r.send(cid, report.ReportDisclaimer)
	parts := splitMessage(text, maxMessageUnits)
	sent := make([]int, 0, len(parts))
	for i, chunk := range parts {
		m, err := r.Bot.Send(tgbotapi.NewMessage(cid, chunk))
		if err != nil {
			r.logger().Error("report delivery failed", zap.Int64("chat_id", cid),
				zap.Int("part", i+1), zap.Int("parts", len(parts)), zap.Error(err))
			r.retract(cid, sent)
			r.send(cid, "❌ The report could not be delivered. Send the image again to regenerate it.")
			return
		}
		sent = append(sent, m.MessageID)
	}
	if kb, ok := shareKeyboard(report.ShareLink(r.ShareBaseURL, text)); ok {
		r.sendWithKeyboard(cid, "✅ Report generated successfully", kb)
		return
	}
	r.send(cid, "✅ Report generated successfully. It is too long for a share link; forward the messages above instead.")
}

func (r *Router) retract(cid int64, ids []int) {
	for _, id := range ids {
		if _, err := r.Bot.Request(tgbotapi.NewDeleteMessage(cid, id)); err != nil {
			r.logger().Warn("partial report not removed", zap.Int64("chat_id", cid), zap.Int("message_id", id), zap.Error(err))
		}
	}
}

func (r *Router) editKeyboard(cid int64, msgID int, kb tgbotapi.InlineKeyboardMarkup) {
	if _, err := r.Bot.Send(tgbotapi.NewEditMessageReplyMarkup(cid, msgID, kb)); err != nil {
		r.logger().Debug("keyboard edit failed", zap.Int64("chat_id", cid), zap.Error(err))
	}
}
