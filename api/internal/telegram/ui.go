package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eye-report/api/internal/modality"
	"eye-report/api/internal/report"
)

const (
	cbModality = "mod:"
	cbStyle    = "style:"
	cbAck      = "ack:toggle"
	cbAnalyze  = "analyze"
)

// maxButtonURL is a conservative limit for URL buttons.
const maxButtonURL = 2048

func modalityKeyboard(current string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(modality.All()))
	for _, m := range modality.All() {
		label := m.String()
		if string(m) == current {
			label = "• " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbModality+string(m))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func styleKeyboard(current modality.Style) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 2)
	for _, s := range modality.Styles() {
		label := s.String()
		if s == current {
			label = "• " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbStyle+string(s))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// sessionKeyboard shows the acknowledgment toggle (when required) and the Analyze button.
func sessionKeyboard(s *report.Session, p report.GatePolicy) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if p.RequireAcknowledgment {
		box := "☐ "
		if s.Acknowledged {
			box = "☑ "
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(box+"I understand this is AI clinical support only", cbAck)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔬 Analyze Scan", cbAnalyze)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func shareKeyboard(link string) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(link) > maxButtonURL {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("📤 Share report", link))), true
}
