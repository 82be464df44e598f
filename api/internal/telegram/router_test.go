package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eye-report/api/internal/modality"
	"eye-report/api/internal/prompt"
	"eye-report/api/internal/reference"
	"eye-report/api/internal/report"
	"eye-report/api/internal/session"
	"eye-report/api/internal/vision"
)

const chatID = int64(42)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'J', 'F', 'I', 'F'}

type fakeBot struct {
	mu       sync.Mutex
	nextID   int
	texts    []string
	markups  []tgbotapi.InlineKeyboardMarkup
	requests []tgbotapi.Chattable

	// reject fails any message whose text it matches.
	reject func(text string) bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		if b.reject != nil && b.reject(m.Text) {
			return tgbotapi.Message{}, errors.New("Bad Request: message is too long")
		}
		b.nextID++
		b.texts = append(b.texts, m.Text)
		if kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
			b.markups = append(b.markups, kb)
		}
	case tgbotapi.EditMessageReplyMarkupConfig:
		if m.ReplyMarkup != nil {
			b.markups = append(b.markups, *m.ReplyMarkup)
		}
	}
	return tgbotapi.Message{MessageID: b.nextID}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.test/" + fileID, nil
}

func (b *fakeBot) all() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.texts, "\n---\n")
}

type stubEngine struct {
	calls  int
	out    string
	err    error
	during func()
}

func (e *stubEngine) Name() string     { return "stub" }
func (e *stubEngine) GetModel() string { return "m" }
func (e *stubEngine) Complete(context.Context, vision.Request) (string, error) {
	e.calls++
	if e.during != nil {
		e.during()
	}
	return e.out, e.err
}

func newRouter(t *testing.T, e vision.Engine, policy report.GatePolicy) (*Router, *fakeBot, session.Store) {
	t.Helper()
	return newRouterWithStore(t, e, policy, session.NewMemoryStore())
}

func newRouterWithStore(t *testing.T, e vision.Engine, policy report.GatePolicy, store session.Store) (*Router, *fakeBot, session.Store) {
	t.Helper()
	corpus := reference.NewCorpus(reference.NewLoader(filepath.Join(t.TempDir(), "none.pdf"), 0, 0))
	svc := report.NewService(corpus, prompt.NewAssembler(0),
		vision.NewDispatcher(e, vision.DispatcherOptions{Temperature: 0.2}), policy)
	bot := &fakeBot{}
	r := &Router{
		Bot:      bot,
		Service:  svc,
		Sessions: store,
		Fetch: func(_ context.Context, url string) ([]byte, error) {
			if !strings.HasPrefix(url, "https://files.test/") {
				return nil, errors.New("unexpected url " + url)
			}
			return jpeg, nil
		},
	}
	return r, bot, store
}

func command(text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func photo() tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{{FileID: "small", FileSize: 10}, {FileID: "large", FileSize: 100}},
	}}
}

func callback(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestStartShowsDisclaimerAndModalities(t *testing.T) {
	r, bot, _ := newRouter(t, &stubEngine{}, report.DefaultPolicy)
	r.HandleUpdate(context.Background(), command("/start"))
	if !strings.Contains(bot.all(), "AI Medical Disclaimer") {
		t.Error("disclaimer not sent on /start")
	}
	if len(bot.markups) != 1 || len(bot.markups[0].InlineKeyboard) != len(modality.All()) {
		t.Errorf("expected modality keyboard, got %+v", bot.markups)
	}
}

func TestFullFlow(t *testing.T) {
	e := &stubEngine{out: "**KEY FINDINGS:** none"}
	r, bot, store := newRouter(t, e, report.DefaultPolicy)
	ctx := context.Background()

	r.HandleUpdate(ctx, callback(cbModality+string(modality.OCTA)))
	r.HandleUpdate(ctx, photo())
	s, _ := store.Get(ctx, chatID)
	if s.State != report.StateImageProvided || s.Source != modality.SourceCapture || s.Modality != modality.OCTA {
		t.Fatalf("unexpected session %+v", s)
	}

	r.HandleUpdate(ctx, callback(cbAnalyze))
	if e.calls != 0 {
		t.Fatal("engine called before acknowledgment")
	}
	if !strings.Contains(bot.all(), "Please acknowledge the AI medical disclaimer to proceed.") {
		t.Error("acknowledgment warning not shown")
	}

	r.HandleUpdate(ctx, callback(cbAck))
	r.HandleUpdate(ctx, callback(cbAnalyze))
	if e.calls != 1 {
		t.Fatalf("expected one dispatch, got %d", e.calls)
	}
	if !strings.Contains(bot.all(), "**KEY FINDINGS:** none") {
		t.Error("report not delivered verbatim")
	}
	s, _ = store.Get(ctx, chatID)
	if s.State != report.StateSucceeded {
		t.Errorf("state %s", s.State)
	}
	last := bot.markups[len(bot.markups)-1]
	if btn := last.InlineKeyboard[0][0]; btn.URL == nil || !strings.HasPrefix(*btn.URL, "https://wa.me/?text=") {
		t.Errorf("share button missing: %+v", last)
	}
}

func TestFailureShowsDetail(t *testing.T) {
	e := &stubEngine{err: errors.New("groq 500: upstream exploded")}
	r, bot, store := newRouter(t, e, report.GatePolicy{})
	ctx := context.Background()
	r.HandleUpdate(ctx, photo())
	r.HandleUpdate(ctx, callback(cbAnalyze))

	if !strings.Contains(bot.all(), "Analysis failed") || !strings.Contains(bot.all(), "upstream exploded") {
		t.Errorf("failure detail not shown: %s", bot.all())
	}
	s, _ := store.Get(ctx, chatID)
	if s.State != report.StateFailed || s.Report != "" {
		t.Errorf("unexpected session %+v", s)
	}
}

func TestAnalyzeWithoutImage(t *testing.T) {
	e := &stubEngine{out: "x"}
	r, bot, _ := newRouter(t, e, report.GatePolicy{})
	r.HandleUpdate(context.Background(), callback(cbAnalyze))
	if e.calls != 0 {
		t.Fatal("engine called without an image")
	}
	if !strings.Contains(bot.all(), "upload or capture an image") {
		t.Errorf("missing image hint: %s", bot.all())
	}
}

func TestDocumentUpload(t *testing.T) {
	r, bot, store := newRouter(t, &stubEngine{}, report.DefaultPolicy)
	ctx := context.Background()

	pdf := tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Document: &tgbotapi.Document{FileID: "d1", MimeType: "application/pdf"},
	}}
	r.HandleUpdate(ctx, pdf)
	if !strings.Contains(bot.all(), "JPG, PNG or WebP") {
		t.Error("non-image document accepted")
	}

	img := tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Document: &tgbotapi.Document{FileID: "d2", MimeType: "image/jpeg", FileSize: len(jpeg)},
	}}
	r.HandleUpdate(ctx, img)
	s, _ := store.Get(ctx, chatID)
	if s.Source != modality.SourceUpload || s.MIME != "image/jpeg" {
		t.Errorf("unexpected session %+v", s)
	}
}

func TestBusyChatIsRefused(t *testing.T) {
	r, bot, store := newRouter(t, &stubEngine{}, report.DefaultPolicy)
	unlock, ok, err := store.TryLock(context.Background(), chatID)
	if err != nil || !ok {
		t.Fatalf("lock not acquired: %v", err)
	}
	r.HandleUpdate(context.Background(), photo())
	unlock()
	if !strings.Contains(bot.all(), "Still working") {
		t.Errorf("busy chat not refused: %s", bot.all())
	}
}

func TestResetAndHealth(t *testing.T) {
	r, bot, store := newRouter(t, &stubEngine{}, report.DefaultPolicy)
	r.Health = func(context.Context) map[string]string { return map[string]string{"engine": "stub/m"} }
	ctx := context.Background()
	r.HandleUpdate(ctx, photo())
	r.HandleUpdate(ctx, command("/reset"))
	if s, _ := store.Get(ctx, chatID); s.HasImage() {
		t.Error("reset kept the image")
	}
	r.HandleUpdate(ctx, command("/health"))
	if !strings.Contains(bot.all(), "engine: stub/m") {
		t.Errorf("health text: %s", bot.all())
	}
}

func TestSplitMessage(t *testing.T) {
	long := strings.Repeat("line of findings é\n", 700)
	tests := []struct {
		name  string
		text  string
		limit int
	}{
		{"short", "**KEY FINDINGS:** none", 4000},
		{"long", long, 4000},
		{"no newlines", strings.Repeat("x", 9001), 4000},
		{"tiny limit", "ab\ncd\nef", 3},
		{"astral", strings.Repeat("👁️", 2500), 4000},
		{"astral with lines", strings.Repeat("🩺 finding\n", 900), 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := splitMessage(tt.text, tt.limit)
			if strings.Join(parts, "") != tt.text {
				t.Fatal("chunks do not reassemble to the original")
			}
			for _, p := range parts {
				if n := len(utf16.Encode([]rune(p))); n > tt.limit || n == 0 {
					t.Errorf("chunk of %d UTF-16 units", n)
				}
			}
		})
	}
}

func TestReportDeliveryFailureRemovesPartialReport(t *testing.T) {
	body := strings.Repeat("KEY FINDINGS line\n", 400) + "TAIL-MARKER"
	e := &stubEngine{out: body}
	r, bot, _ := newRouter(t, e, report.GatePolicy{})
	bot.reject = func(text string) bool { return strings.Contains(text, "TAIL-MARKER") }
	ctx := context.Background()

	r.HandleUpdate(ctx, photo())
	r.HandleUpdate(ctx, callback(cbAnalyze))

	parts := splitMessage(body, maxMessageUnits)
	if len(parts) < 2 {
		t.Fatalf("expected a multi-part report, got %d part", len(parts))
	}
	out := bot.all()
	if strings.Contains(out, "Report generated successfully") {
		t.Error("success reported after a failed chunk")
	}
	if !strings.Contains(out, "could not be delivered") {
		t.Errorf("delivery failure not reported: %s", out)
	}

	var deleted int
	for _, req := range bot.requests {
		if _, ok := req.(tgbotapi.DeleteMessageConfig); ok {
			deleted++
		}
	}
	if deleted != len(parts)-1 {
		t.Errorf("expected %d sent chunks removed, got %d", len(parts)-1, deleted)
	}
}

func TestChatLeaseSharedAcrossReplicas(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := session.NewRedisStore(rdb, time.Minute)
	ctx := context.Background()

	e := &stubEngine{out: "**KEY FINDINGS:** none"}
	first, _, _ := newRouterWithStore(t, e, report.GatePolicy{}, store)
	second, secondBot, _ := newRouterWithStore(t, e, report.GatePolicy{}, store)

	first.HandleUpdate(ctx, photo())
	e.during = func() {
		second.HandleUpdate(ctx, callback(cbAnalyze))
		second.HandleUpdate(ctx, photo())
	}
	first.HandleUpdate(ctx, callback(cbAnalyze))

	if e.calls != 1 {
		t.Fatalf("expected one dispatch across replicas, got %d", e.calls)
	}
	var refusedCallback bool
	for _, req := range secondBot.requests {
		if cb, ok := req.(tgbotapi.CallbackConfig); ok && strings.Contains(cb.Text, "Still working") {
			refusedCallback = true
		}
	}
	if !refusedCallback || !strings.Contains(secondBot.all(), "Still working") {
		t.Errorf("second replica did not refuse input: %s", secondBot.all())
	}
	if mr.Exists("eye-report:inflight:42") {
		t.Error("lease not released after dispatch")
	}
	s, err := store.Get(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if s.State != report.StateSucceeded || s.HasImage() {
		t.Errorf("unexpected stored session %+v", s)
	}
}
