package dispatcher

import (
	"io"
	"net/http"

	"github.com/router-for-me/acctproxy/internal/translator"
)

// Flusher is satisfied by gin's response writer (and http.ResponseWriter
// generally); streaming forwarders flush after every SSE record so
// bytes reach the caller without buffering delay.
type Flusher interface {
	Flush()
}

// ForwardBuffered copies a non-streaming upstream response to w,
// transparently decoding a brotli-encoded body and re-encoding with
// gzip toward the caller when it advertised Accept-Encoding: gzip —
// the supplemental compression feature from SPEC_FULL.md's domain
// stack. Status and a normalized Content-Type are always set.
func ForwardBuffered(w http.ResponseWriter, resp *http.Response, acceptEncoding string) error {
	body := DecodeBody(resp)
	data, err := io.ReadAll(body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)

	dst, closer, gzipped := GzipWriterFor(acceptEncoding, w)
	if gzipped {
		w.Header().Set("Content-Encoding", "gzip")
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := dst.Write(data); err != nil {
		closer.Close()
		return err
	}
	return closer.Close()
}

// ForwardTranslatedBuffered decodes the full upstream SSE blob, applies
// convert (Responses->Chat non-stream, or that composed with a
// Chat->Completions rewrap), and writes the result as one JSON body.
func ForwardTranslatedBuffered(w http.ResponseWriter, resp *http.Response, convert func(sseBlob []byte) []byte) error {
	body := DecodeBody(resp)
	blob, err := io.ReadAll(body)
	resp.Body.Close()
	if err != nil {
		return err
	}
	out := convert(blob)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(out)
	return err
}

// ForwardStreamPassthrough tees a native Responses SSE stream straight
// to the caller, normalizing the streaming headers, per spec.md §4.6.
func ForwardStreamPassthrough(w http.ResponseWriter, resp *http.Response) error {
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(Flusher)

	body := DecodeBody(resp)
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ForwardStreamTranslated reads a Responses SSE stream event by event
// and emits re-framed Chat (or, via rewrap, Completions) SSE records,
// per spec.md §4.5.4 / §9's stateful streaming translation note. The
// downstream stream closes when the upstream stream closes.
func ForwardStreamTranslated(w http.ResponseWriter, resp *http.Response, reverse map[string]string, rewrap func(chatChunkJSON []byte) []byte) error {
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(Flusher)

	body := DecodeBody(resp)
	defer resp.Body.Close()

	r := translator.NewSSEReader(body)
	state := translator.NewStreamState(reverse)

	for {
		payload, err := r.Next()
		if len(payload) > 0 {
			for _, chunk := range state.HandleEvent(payload) {
				out := []byte(chunk)
				if rewrap != nil {
					out = reframe(rewrap, chunk)
				}
				if _, werr := w.Write(out); werr != nil {
					return werr
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
		if err == io.EOF {
			w.Write([]byte("data: [DONE]\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// reframe unwraps a "data: <json>\n\n" record, applies rewrap to the
// inner JSON, and re-wraps it in the same SSE framing.
func reframe(rewrap func([]byte) []byte, record string) []byte {
	const prefix = "data: "
	const suffix = "\n\n"
	inner := record
	if len(inner) >= len(prefix) && inner[:len(prefix)] == prefix {
		inner = inner[len(prefix):]
	}
	if len(inner) >= len(suffix) && inner[len(inner)-len(suffix):] == suffix {
		inner = inner[:len(inner)-len(suffix)]
	}
	out := rewrap([]byte(inner))
	return append(append([]byte(prefix), out...), suffix...)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Content-Type", "text/event-stream")
}
