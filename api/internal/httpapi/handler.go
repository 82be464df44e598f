package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/httpserver"
	"eye-report/api/internal/modality"
	"eye-report/api/internal/report"
	"eye-report/api/internal/util"
)

const requestIDHeader = "X-Request-ID"

type Options struct {
	MaxImageBytes int64
	ShareBaseURL  string
	Health        func(ctx context.Context) map[string]string
}

type Handle struct {
	svc  *report.Service
	opts Options
	log  *zap.Logger
}

type ErrorResponse struct {
	Error   string      `json:"error"`
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

type ReportResponse struct {
	RequestID  string `json:"request_id"`
	Report     string `json:"report"`
	ShareURL   string `json:"share_url"`
	Modality   string `json:"modality"`
	Style      string `json:"style"`
	Model      string `json:"model"`
	Disclaimer string `json:"disclaimer"`
}

type option struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func New(svc *report.Service, opts Options, log *zap.Logger) *Handle {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 10 << 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handle{svc: svc, opts: opts, log: log}
}

// Router returns the gin engine with all routes.
func (h *Handle) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(h.log))

	r.GET("/healthz", h.healthz)
	v1 := r.Group("/v1")
	v1.GET("/modalities", h.modalities)
	// multipart overhead on top of the image itself
	v1.POST("/reports", requestSizeLimiter(h.opts.MaxImageBytes+64<<10), h.createReport)
	return r
}

func (h *Handle) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	out := gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
	code := http.StatusOK
	if h.opts.Health != nil {
		deps := h.opts.Health(ctx)
		if len(httpserver.Failing(deps)) > 0 {
			out["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
		out["components"] = deps
	}
	c.JSON(code, out)
}

func (h *Handle) modalities(c *gin.Context) {
	mods := make([]option, 0, len(modality.All()))
	for _, m := range modality.All() {
		mods = append(mods, option{Key: string(m), Name: m.String()})
	}
	styles := make([]option, 0, len(modality.Styles()))
	for _, s := range modality.Styles() {
		styles = append(styles, option{Key: string(s), Name: s.String()})
	}
	c.JSON(http.StatusOK, gin.H{
		"modalities":             mods,
		"styles":                 styles,
		"require_acknowledgment": h.svc.Policy().RequireAcknowledgment,
		"acknowledgment":         report.Acknowledgment,
		"disclaimer":             report.Disclaimer,
		"footer":                 report.Footer,
	})
}

func (h *Handle) createReport(c *gin.Context) {
	sess, err := h.sessionFromForm(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	text, err := h.svc.Run(c.Request.Context(), sess)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.log.Info("report generated",
		zap.String("request_id", c.GetString("request_id")),
		zap.String("modality", string(sess.Modality)),
		zap.String("model", h.svc.Model()),
		zap.Int("report_chars", len([]rune(text))),
	)
	c.JSON(http.StatusOK, ReportResponse{
		RequestID:  c.GetString("request_id"),
		Report:     text,
		ShareURL:   report.ShareLink(h.opts.ShareBaseURL, text),
		Modality:   sess.Modality.String(),
		Style:      sess.Style.String(),
		Model:      h.svc.Model(),
		Disclaimer: report.ReportDisclaimer,
	})
}

// sessionFromForm builds a one-shot session from the multipart fields.
func (h *Handle) sessionFromForm(c *gin.Context) (*report.Session, error) {
	sess := report.NewSession()

	if v := c.PostForm("modality"); v != "" {
		m, err := modality.Parse(v)
		if err != nil {
			return nil, apperr.Validation(err.Error(), nil)
		}
		_ = sess.SelectModality(m)
	}
	if v := c.PostForm("style"); v != "" {
		s, err := modality.ParseStyle(v)
		if err != nil {
			return nil, apperr.Validation(err.Error(), nil)
		}
		_ = sess.SelectStyle(s)
	}
	src, err := modality.ParseSource(c.PostForm("source"))
	if err != nil {
		return nil, apperr.Validation(err.Error(), nil)
	}
	ack, err := parseAck(c.PostForm("acknowledged"))
	if err != nil {
		return nil, err
	}

	img, mime, err := h.readImage(c)
	if err != nil {
		return nil, err
	}
	if err := sess.ProvideImage(img, mime, src); err != nil {
		return nil, err
	}
	if ack {
		_ = sess.SetAcknowledged(true)
	}
	return sess, nil
}

func (h *Handle) readImage(c *gin.Context) ([]byte, string, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, "", errTooLarge
		}
		return nil, "", apperr.Validation("image file is required", err)
	}
	if fh.Size > h.opts.MaxImageBytes {
		return nil, "", errTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", apperr.Validation("cannot read image", err)
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, h.opts.MaxImageBytes+1))
	if err != nil {
		return nil, "", apperr.Validation("cannot read image", err)
	}
	if int64(len(b)) > h.opts.MaxImageBytes {
		return nil, "", errTooLarge
	}
	if len(b) == 0 {
		return nil, "", apperr.Validation("image file is empty", nil)
	}
	mime := util.PickMIME(fh.Header.Get("Content-Type"), b)
	if !util.IsImageMIME(mime) {
		return nil, "", apperr.Validation("unsupported image type "+mime, nil)
	}
	return b, mime, nil
}

var errTooLarge = apperr.Validation("image exceeds the size limit", nil)

func parseAck(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return false, nil
	case "on", "yes", "y":
		return true, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, apperr.Validation("acknowledged must be a boolean", err)
	}
	return b, nil
}

func (h *Handle) respondError(c *gin.Context, err error) {
	code := apperr.StatusCode(err)
	if err == errTooLarge {
		code = http.StatusRequestEntityTooLarge
	}
	kind := apperr.KindOf(err)
	fields := []zap.Field{
		zap.String("request_id", c.GetString("request_id")),
		zap.String("kind", string(kind)),
		zap.Int("status_code", code),
		zap.Error(err),
	}
	if code >= 500 {
		h.log.Error("report request failed", fields...)
	} else {
		h.log.Info("report request rejected", fields...)
	}
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Kind:    kind,
		Message: apperr.Message(err),
	})
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}
