package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/modality"
	"eye-report/api/internal/util"
)

const defaultMaxImageBytes = 10 << 20

// acceptPhoto takes the largest size of a compressed photo as a camera capture.
func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	ph := msg.Photo[len(msg.Photo)-1]
	r.acceptImage(ctx, msg.Chat.ID, ph.FileID, ph.FileSize, "", modality.SourceCapture)
}

// acceptDocument takes an uncompressed image file as an upload.
func (r *Router) acceptDocument(ctx context.Context, msg *tgbotapi.Message) {
	d := msg.Document
	if d.MimeType != "" && !util.IsImageMIME(d.MimeType) {
		r.send(msg.Chat.ID, "⚠️ Please send a JPG, PNG or WebP image.")
		return
	}
	r.acceptImage(ctx, msg.Chat.ID, d.FileID, d.FileSize, d.MimeType, modality.SourceUpload)
}

func (r *Router) acceptImage(ctx context.Context, cid int64, fileID string, size int, mime string, src modality.Source) {
	limit := r.maxImageBytes()
	if int64(size) > limit {
		r.sendError(cid, apperr.Validation("image exceeds the size limit", nil))
		return
	}
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.sendError(cid, apperr.Validation("cannot get file from Telegram", err))
		return
	}
	img, err := r.fetch(ctx, url)
	if err != nil {
		r.sendError(cid, apperr.Validation("cannot download image", err))
		return
	}
	if int64(len(img)) > limit {
		r.sendError(cid, apperr.Validation("image exceeds the size limit", nil))
		return
	}
	mime = util.PickMIME(mime, img)
	if !util.IsImageMIME(mime) {
		r.send(cid, "⚠️ Please send a JPG, PNG or WebP image.")
		return
	}

	s, err := r.Sessions.Get(ctx, cid)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	if !r.save(ctx, cid, s, s.ProvideImage(img, mime, src)) {
		return
	}

	text := fmt.Sprintf("📷 %s scan received.", s.Modality.String())
	if r.Service.Policy().RequireAcknowledgment {
		text += "\n\n" + ackPrompt
	}
	r.sendWithKeyboard(cid, text, sessionKeyboard(s, r.Service.Policy()))
}

const ackPrompt = "Please acknowledge the AI medical disclaimer, then press Analyze."

func (r *Router) maxImageBytes() int64 {
	if r.MaxImageBytes > 0 {
		return r.MaxImageBytes
	}
	return defaultMaxImageBytes
}

func (r *Router) fetch(ctx context.Context, url string) ([]byte, error) {
	if r.Fetch != nil {
		return r.Fetch(ctx, url)
	}
	return download(ctx, url, r.maxImageBytes())
}

func download(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit+1))
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
