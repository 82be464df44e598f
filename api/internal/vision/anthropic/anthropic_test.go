package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"eye-report/api/internal/vision"
)

func TestCompleteReturnsFirstTextBlock(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"m",
"content":[{"type":"text","text":"**SCAN QUALITY:** adequate"}],
"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	e := New("k", "", srv.URL)
	got, err := e.Complete(context.Background(), vision.Request{
		Prompt: "describe",
		Image:  []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "**SCAN QUALITY:** adequate" {
		t.Errorf("got %q", got)
	}
	raw, _ := json.Marshal(body["messages"])
	if !strings.Contains(string(raw), `"media_type":"image/png"`) {
		t.Errorf("image block not tagged as png: %s", raw)
	}
}

func TestCompleteServiceError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	e := New("bad", "", srv.URL)
	_, err := e.Complete(context.Background(), vision.Request{Prompt: "p", Image: []byte{1}})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected one request, got %d", hits)
	}
}
