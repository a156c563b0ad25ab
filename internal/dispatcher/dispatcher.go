// Package dispatcher orchestrates one incoming request: select an
// Account, forward it upstream, classify the result, and retry,
// refresh, or switch accounts as needed. Spec.md §9 notes the source
// carries near-duplicate retry code for the /v1/responses fast path,
// the chat/completions streaming fast path, and the generic /v1/*
// fall-through, and that a rewrite should factor these into one
// retry/switch driver parameterized over {translator, stream-vs-buffer,
// max-attempts, cooldown-policy}. Establish below is that single
// driver, parameterized by Family.
package dispatcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/acctproxy/internal/clockid"
	"github.com/router-for-me/acctproxy/internal/lifecycle"
	"github.com/router-for-me/acctproxy/internal/model"
	"github.com/router-for-me/acctproxy/internal/refresher"
	"github.com/router-for-me/acctproxy/internal/selector"
	"github.com/router-for-me/acctproxy/internal/store"
)

// retriable is the set shared with lifecycle's request-time cooldown
// policy; membership here drives the retry/switch decision, not just
// the cooldown.
var retriable = map[int]bool{
	401: true, 403: true, 408: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
}

// sameAccountRetryStatus is the narrower set that earns one immediate
// retry on the SAME account before any refresh/switch is attempted.
var sameAccountRetryStatus = map[int]bool{
	408: true, 500: true, 502: true, 503: true, 504: true,
}

// CooldownPolicy selects which of the two distinct cooldown policies
// (spec.md §4.2, §9 "Dual retry policies") a dispatch family records a
// failure under.
type CooldownPolicy int

const (
	// RequestCooldownPolicy is the harsh, uniform 3-hour cooldown.
	RequestCooldownPolicy CooldownPolicy = iota
	// RefreshCooldownPolicy is the milder per-code/exponential policy,
	// normally reserved for failures encountered during refresh itself.
	// The simplified chat-stream/completions-stream family is
	// documented (spec.md §4.6) as using this policy even for
	// request-path failures; see DESIGN.md for the rationale.
	RefreshCooldownPolicy
)

func markFailure(a *model.Account, policy CooldownPolicy, status int, now time.Time) {
	if policy == RefreshCooldownPolicy {
		lifecycle.MarkRefreshFailure(a, status, now)
		return
	}
	lifecycle.MarkRequestFailure(a, status, now)
}

// Upstream performs one HTTP round trip. Implemented by *http.Client in
// production; tests substitute a fake.
type Upstream interface {
	Do(req *http.Request) (*http.Response, error)
}

type Dispatcher struct {
	Store           *store.Store
	Selector        *selector.Selector
	Refresher       *refresher.Refresher
	Clock           clockid.Clock
	Upstream        Upstream
	UpstreamBaseURL string
}

// ErrNoUsableAccount mirrors spec.md §7's NoUsableAccount kind.
type ErrNoUsableAccount struct{}

func (ErrNoUsableAccount) Error() string {
	return "No usable accounts (all disabled, cooling down or expired)"
}

// Family bundles the parameters that distinguish the /v1/responses
// fast path, the chat/completions streaming fast path, and the
// generic fall-through, per spec.md §9's factoring note.
type Family struct {
	MaxAttempts      int
	SameAccountRetry bool
	CooldownPolicy   CooldownPolicy
}

// DefaultFamily is the full retry/switch behavior described in the
// main body of spec.md §4.6: same-account retry on 5xx/408, refresh,
// then switch; harsh request-time cooldown on exhaustion.
func DefaultFamily(totalAccounts int) Family {
	return Family{
		MaxAttempts:      max(totalAccounts, 1),
		SameAccountRetry: true,
		CooldownPolicy:   RequestCooldownPolicy,
	}
}

// SimplifiedStreamFamily is the variant documented for the chat-stream
// and completions-stream paths: capped at min(total,3) accounts tried,
// no same-account retry, and the refresh-time cooldown policy applied
// on exhaustion. This resolves spec.md §9's open question by picking
// one behavior per dispatch family and documenting it (see DESIGN.md).
func SimplifiedStreamFamily(totalAccounts int) Family {
	attempts := totalAccounts
	if attempts > 3 {
		attempts = 3
	}
	return Family{
		MaxAttempts:      max(attempts, 1),
		SameAccountRetry: false,
		CooldownPolicy:   RefreshCooldownPolicy,
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// AttemptResult is the outcome of establishing one upstream call.
type AttemptResult struct {
	Response *http.Response // a terminal (2xx or non-retriable) response, or the last failed one once accounts are exhausted
	Account  *model.Account // the account that produced Response
}

// Establish runs the select → send → classify → retry/refresh/switch
// loop until a terminal response is obtained or accounts are
// exhausted. It does not read or forward the response body; callers
// do that themselves (buffered or streamed) once a terminal response
// is returned, matching spec.md §4.6's instruction that for streams,
// retry applies only up to the point the first byte leaves the proxy.
func (d *Dispatcher) Establish(ctx context.Context, family Family, build func(a *model.Account) (*http.Request, error)) (*AttemptResult, error) {
	current := d.Selector.Select()
	if current == nil {
		return nil, ErrNoUsableAccount{}
	}

	accountsTried := 0
	var lastResp *http.Response
	var lastAccount *model.Account

	for accountsTried < family.MaxAttempts {
		resp, err := d.send(ctx, current, build)
		if err != nil {
			resp = synthesizeErrorResponse(err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &AttemptResult{Response: resp, Account: current}, nil
		}
		if !retriable[resp.StatusCode] {
			return &AttemptResult{Response: resp, Account: current}, nil
		}

		if family.SameAccountRetry && sameAccountRetryStatus[resp.StatusCode] {
			drainAndClose(resp)
			resp2, err2 := d.send(ctx, current, build)
			if err2 != nil {
				resp2 = synthesizeErrorResponse(err2)
			}
			resp = resp2
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return &AttemptResult{Response: resp, Account: current}, nil
			}
			if !retriable[resp.StatusCode] {
				return &AttemptResult{Response: resp, Account: current}, nil
			}
		}

		if current.Kind == model.KindOAuth {
			drainAndClose(resp)
			if renewed, rerr := d.Refresher.Refresh(ctx, current); rerr == nil {
				current = renewed
				resp3, err3 := d.send(ctx, current, build)
				if err3 != nil {
					resp3 = synthesizeErrorResponse(err3)
				}
				resp = resp3
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					return &AttemptResult{Response: resp, Account: current}, nil
				}
				if !retriable[resp.StatusCode] {
					return &AttemptResult{Response: resp, Account: current}, nil
				}
			}
		}

		now := d.Clock.Now()
		d.Store.Update(current.ID, func(acc *model.Account) bool {
			markFailure(acc, family.CooldownPolicy, resp.StatusCode, now)
			return true
		})
		drainAndClose(resp)
		lastResp, lastAccount = resp, current

		accountsTried++
		next := d.Selector.Advance()
		if next == nil {
			break
		}
		current = next
	}

	if lastResp != nil {
		return &AttemptResult{Response: lastResp, Account: lastAccount}, nil
	}
	return nil, ErrNoUsableAccount{}
}

func (d *Dispatcher) send(ctx context.Context, a *model.Account, build func(a *model.Account) (*http.Request, error)) (*http.Response, error) {
	req, err := build(a)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	return d.Upstream.Do(req)
}

func synthesizeErrorResponse(err error) *http.Response {
	log.WithError(err).Warn("dispatcher: upstream call failed")
	return &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Header:     http.Header{},
	}
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// DecodeBody transparently decodes a brotli-encoded upstream body,
// per SPEC_FULL.md's domain-stack wiring; any other (or absent)
// Content-Encoding is returned unchanged.
func DecodeBody(resp *http.Response) io.Reader {
	if resp.Header.Get("Content-Encoding") == "br" {
		return brotli.NewReader(resp.Body)
	}
	return resp.Body
}

// GzipWriterFor wraps w in a gzip.Writer when the caller advertised
// Accept-Encoding: gzip and the response is not a stream, per
// SPEC_FULL.md's supplemental compression feature. The returned
// closer must be closed after the body is fully written.
func GzipWriterFor(acceptEncoding string, w io.Writer) (io.Writer, io.Closer, bool) {
	if !acceptsGzip(acceptEncoding) {
		return w, nopCloser{}, false
	}
	gz := gzip.NewWriter(w)
	return gz, gz, true
}

func acceptsGzip(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		if strings.TrimSpace(part) == "gzip" {
			return true
		}
	}
	return false
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
