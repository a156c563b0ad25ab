package dispatcher

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestForwardBufferedPassesStatusAndBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       http.NoBody,
	}
	resp.Body = io.NopCloser(strings.NewReader(`{"ok":true}`))

	w := httptest.NewRecorder()
	if err := ForwardBuffered(w, resp, ""); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q", w.Body.String())
	}
	if enc := w.Header().Get("Content-Encoding"); enc != "" {
		t.Errorf("Content-Encoding = %q, want unset without gzip negotiation", enc)
	}
}

func TestForwardBufferedGzipsWhenAccepted(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}
	w := httptest.NewRecorder()
	if err := ForwardBuffered(w, resp, "gzip"); err != nil {
		t.Fatal(err)
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", got)
	}
}

func TestForwardTranslatedBufferedAppliesConvertAndSetsJSONContentType(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(`irrelevant sse blob`)),
	}
	w := httptest.NewRecorder()
	convert := func(blob []byte) []byte { return []byte(`{"converted":true}`) }
	if err := ForwardTranslatedBuffered(w, resp, convert); err != nil {
		t.Fatal(err)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if !gjson.GetBytes(w.Body.Bytes(), "converted").Bool() {
		t.Error("expected the converted body to be written through")
	}
}

func TestForwardStreamPassthroughSetsSSEHeadersAndTeesBytes(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("data: {\"a\":1}\n\n")),
	}
	w := httptest.NewRecorder()
	if err := ForwardStreamPassthrough(w, resp); err != nil {
		t.Fatal(err)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}
	if !strings.Contains(w.Body.String(), `{"a":1}`) {
		t.Errorf("body = %q, want the raw sse payload passed through verbatim", w.Body.String())
	}
}

func TestForwardStreamTranslatedEmitsDoneSentinelAtEnd(t *testing.T) {
	sse := "data: {\"type\":\"response.output_text.delta\",\"delta\":\"hi\",\"response\":{\"id\":\"r1\",\"model\":\"gpt-5\"}}\n\n" +
		"data: {\"type\":\"response.completed\"}\n\n"
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(sse)),
	}
	w := httptest.NewRecorder()
	if err := ForwardStreamTranslated(w, resp, map[string]string{}, nil); err != nil {
		t.Fatal(err)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"content":"hi"`) {
		t.Errorf("body = %q, want the translated delta chunk", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("body should end with the [DONE] sentinel, got %q", body)
	}
}

func TestForwardStreamTranslatedAppliesRewrap(t *testing.T) {
	sse := "data: {\"type\":\"response.output_text.delta\",\"delta\":\"hi\",\"response\":{\"id\":\"r1\",\"model\":\"gpt-5\"}}\n\n"
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(sse)),
	}
	w := httptest.NewRecorder()
	rewrap := func(chatChunkJSON []byte) []byte { return []byte(`{"rewrapped":true}`) }
	if err := ForwardStreamTranslated(w, resp, map[string]string{}, rewrap); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(w.Body.String(), `{"rewrapped":true}`) {
		t.Errorf("body = %q, want rewrap applied to each chunk", w.Body.String())
	}
}
