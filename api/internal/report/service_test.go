package report

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/modality"
	"eye-report/api/internal/prompt"
	"eye-report/api/internal/reference"
	"eye-report/api/internal/vision"
)

type stubEngine struct {
	calls  int
	prompt string
	out    string
	err    error
}

func (e *stubEngine) Name() string     { return "stub" }
func (e *stubEngine) GetModel() string { return "stub-1" }
func (e *stubEngine) Complete(_ context.Context, in vision.Request) (string, error) {
	e.calls++
	e.prompt = in.Prompt
	return e.out, e.err
}

type recordingObserver struct{ got []Outcome }

func (r *recordingObserver) Observe(_ context.Context, o Outcome) { r.got = append(r.got, o) }

func newService(t *testing.T, e vision.Engine, policy GatePolicy) *Service {
	t.Helper()
	missing := reference.NewLoader(filepath.Join(t.TempDir(), "REFERENCE.pdf"), 0, 0)
	d := vision.NewDispatcher(e, vision.DispatcherOptions{Temperature: vision.DefaultTemperature})
	return NewService(reference.NewCorpus(missing), prompt.NewAssembler(0), d, policy)
}

func readySession(t *testing.T) *Session {
	t.Helper()
	s := NewSession()
	if err := s.ProvideImage([]byte{0xFF, 0xD8, 0xFF}, "image/jpeg", modality.SourceUpload); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAcknowledged(true); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRunMaculaWithoutReference(t *testing.T) {
	const canned = "**KEY FINDINGS:** none"
	e := &stubEngine{out: canned}
	svc := newService(t, e, DefaultPolicy)
	s := readySession(t)

	got, err := svc.Run(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if got != canned || s.Report != canned {
		t.Errorf("report not verbatim: %q / %q", got, s.Report)
	}
	if s.State != StateSucceeded {
		t.Errorf("state %s", s.State)
	}
	spec, _ := modality.OCTMacula.Spec()
	if !strings.Contains(e.prompt, spec.Focus) || !strings.Contains(e.prompt, "(No reference document available.)") {
		t.Error("prompt missing macula focus or reference placeholder")
	}
	if !apperr.Is(svc.Corpus().Err(), apperr.KindReferenceLoad) {
		t.Errorf("expected degraded reference load, got %v", svc.Corpus().Err())
	}
}

func TestRunFailureMovesToFailed(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"timeout", context.DeadlineExceeded},
		{"client error", errors.New("groq 401: invalid api key")},
		{"server error", errors.New("groq 500: internal error")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, &stubEngine{err: tt.err}, DefaultPolicy)
			s := readySession(t)
			got, err := svc.Run(context.Background(), s)
			if got != "" || s.Report != "" {
				t.Errorf("partial report leaked: %q", got)
			}
			if !apperr.Is(err, apperr.KindDispatch) {
				t.Fatalf("expected dispatch error, got %v", err)
			}
			if s.State != StateFailed || !strings.Contains(s.Error, tt.err.Error()) {
				t.Errorf("state %s error %q", s.State, s.Error)
			}
		})
	}
}

func TestRunNeverDispatchesWhenGated(t *testing.T) {
	e := &stubEngine{out: "x"}
	svc := newService(t, e, DefaultPolicy)

	idle := NewSession()
	if _, err := svc.Run(context.Background(), idle); !apperr.Is(err, apperr.KindGate) {
		t.Errorf("idle: %v", err)
	}
	unacked := NewSession()
	_ = unacked.ProvideImage([]byte{1}, "", "")
	if _, err := svc.Run(context.Background(), unacked); !apperr.Is(err, apperr.KindGate) {
		t.Errorf("unacknowledged: %v", err)
	}
	if unacked.State != StateImageProvided {
		t.Errorf("refused run changed state to %s", unacked.State)
	}
	if e.calls != 0 {
		t.Fatalf("engine called %d times", e.calls)
	}

	open := newService(t, e, GatePolicy{})
	if _, err := open.Run(context.Background(), unacked); err != nil {
		t.Fatalf("ack rule off: %v", err)
	}
	if e.calls != 1 {
		t.Errorf("expected one call, got %d", e.calls)
	}
}

func TestRunRetriggerAfterFailure(t *testing.T) {
	e := &stubEngine{err: errors.New("503")}
	svc := newService(t, e, DefaultPolicy)
	s := readySession(t)
	if _, err := svc.Run(context.Background(), s); err == nil {
		t.Fatal("expected failure")
	}
	e.err, e.out = nil, "report"
	got, err := svc.Run(context.Background(), s)
	if err != nil || got != "report" {
		t.Fatalf("re-trigger: %q %v", got, err)
	}
	if s.Error != "" {
		t.Errorf("error not cleared: %q", s.Error)
	}
}

func TestRunNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	svc := newService(t, &stubEngine{out: "r"}, DefaultPolicy).WithObserver(obs)
	svc.Channel = "http"
	if _, err := svc.Run(context.Background(), readySession(t)); err != nil {
		t.Fatal(err)
	}
	if len(obs.got) != 1 {
		t.Fatalf("expected one outcome, got %d", len(obs.got))
	}
	o := obs.got[0]
	if o.Channel != "http" || o.Provider != "stub" || o.Model != "stub-1" || o.ImageBytes != 3 || len(o.ImageSHA256) != 64 || o.Err != nil {
		t.Errorf("unexpected outcome %+v", o)
	}
	if svc.Model() != "stub/stub-1" {
		t.Errorf("model label %q", svc.Model())
	}
}

func TestShareLink(t *testing.T) {
	tests := []struct {
		base, text, want string
	}{
		{"", "a b&c", "https://wa.me/?text=a+b%26c"},
		{"https://t.me/share/url?url=x", "hi", "https://t.me/share/url?url=x&text=hi"},
	}
	for _, tt := range tests {
		if got := ShareLink(tt.base, tt.text); got != tt.want {
			t.Errorf("ShareLink(%q, %q) = %q, want %q", tt.base, tt.text, got, tt.want)
		}
	}
}
