package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/router-for-me/acctproxy/internal/model"
	"github.com/router-for-me/acctproxy/internal/oauthflow"
	"github.com/router-for-me/acctproxy/internal/refresher"
	"github.com/router-for-me/acctproxy/internal/selector"
	"github.com/router-for-me/acctproxy/internal/store"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

// scriptedUpstream returns, for each call, the next status code from a
// per-account-id queue; once a queue is empty it returns 200.
type scriptedUpstream struct {
	byAccount map[string][]int
	calls     []string // account ids in call order
}

func (u *scriptedUpstream) Do(req *http.Request) (*http.Response, error) {
	id := req.Header.Get("X-Test-Account-Id")
	u.calls = append(u.calls, id)
	status := http.StatusOK
	if q := u.byAccount[id]; len(q) > 0 {
		status = q[0]
		u.byAccount[id] = q[1:]
	}
	return &http.Response{
		StatusCode: status,
		Body:       http.NoBody,
		Header:     http.Header{},
	}, nil
}

func buildRequest(a *model.Account) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, "http://upstream.test/v1/responses", http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Test-Account-Id", a.ID)
	return req, nil
}

func newDispatcher(t *testing.T, accounts []*model.Account, upstream Upstream) (*Dispatcher, *store.Store) {
	t.Helper()
	st := store.New(t.TempDir())
	if err := st.WriteAccounts(accounts); err != nil {
		t.Fatal(err)
	}
	clock := fakeClock{time.Now()}
	sel := selector.New(st, clock)
	provider := &oauthflow.Provider{}
	ref := refresher.New(st, provider, clock)
	return &Dispatcher{
		Store:    st,
		Selector: sel,
		Refresher: ref,
		Clock:    clock,
		Upstream: upstream,
	}, st
}

func relayAcct(id string) *model.Account {
	return &model.Account{ID: id, Kind: model.KindRelay, BaseURL: "http://x", APIKey: "k"}
}

// S1: sticky on success — the first account serves the request and no
// rotation happens.
func TestEstablishStickyOnSuccess(t *testing.T) {
	up := &scriptedUpstream{byAccount: map[string][]int{}}
	d, _ := newDispatcher(t, []*model.Account{relayAcct("A"), relayAcct("B")}, up)

	res, err := d.Establish(context.Background(), DefaultFamily(2), buildRequest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Account.ID != "A" {
		t.Errorf("serving account = %q, want A", res.Account.ID)
	}
	if len(up.calls) != 1 {
		t.Errorf("upstream calls = %v, want exactly one", up.calls)
	}
}

// S2: a 429 on the current account rotates to the next and applies the
// harsh 3-hour cooldown to the failed one.
func TestEstablishRotatesOnRetriableFailure(t *testing.T) {
	up := &scriptedUpstream{byAccount: map[string][]int{"A": {429}}}
	d, st := newDispatcher(t, []*model.Account{relayAcct("A"), relayAcct("B")}, up)

	res, err := d.Establish(context.Background(), DefaultFamily(2), buildRequest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Account.ID != "B" {
		t.Errorf("serving account = %q, want B", res.Account.ID)
	}

	var a *model.Account
	for _, acc := range st.Snapshot() {
		if acc.ID == "A" {
			a = acc
		}
	}
	if a.CooldownUntil == nil {
		t.Fatal("account A should have a cooldown recorded")
	}
	if got := a.CooldownUntil.Sub(time.Now()); got < 2*time.Hour {
		t.Errorf("cooldown = %v, want at least ~3h", got)
	}
}

func TestEstablishSameAccountRetryOn5xxBeforeSwitching(t *testing.T) {
	up := &scriptedUpstream{byAccount: map[string][]int{"A": {500, 200}}}
	d, _ := newDispatcher(t, []*model.Account{relayAcct("A"), relayAcct("B")}, up)

	res, err := d.Establish(context.Background(), DefaultFamily(2), buildRequest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Account.ID != "A" {
		t.Errorf("serving account = %q, want A (same-account retry should have recovered)", res.Account.ID)
	}
	if len(up.calls) != 2 {
		t.Errorf("upstream calls = %v, want 2 (first 500, then retry)", up.calls)
	}
}

// S3: a 401 on an oauth account triggers a refresh then a retry on the
// renewed account before falling back to rotation.
func TestEstablishRefreshesOAuthAccountOn401(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(oauthflow.TokenSet{AccessToken: "new-token", ExpiresIn: 3600})
	}))
	defer tokenSrv.Close()

	st := store.New(t.TempDir())
	accounts := []*model.Account{{ID: "A", Kind: model.KindOAuth, RefreshToken: "rt", AccessToken: "stale"}}
	if err := st.WriteAccounts(accounts); err != nil {
		t.Fatal(err)
	}
	clock := fakeClock{time.Now()}
	sel := selector.New(st, clock)
	provider := &oauthflow.Provider{TokenURL: tokenSrv.URL, HTTPClient: tokenSrv.Client()}
	ref := refresher.New(st, provider, clock)

	up := &scriptedUpstream{byAccount: map[string][]int{"A": {401}}}
	d := &Dispatcher{Store: st, Selector: sel, Refresher: ref, Clock: clock, Upstream: up}

	res, err := d.Establish(context.Background(), DefaultFamily(1), buildRequest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Response.StatusCode != http.StatusOK {
		t.Errorf("final status = %d, want 200 after refresh+retry", res.Response.StatusCode)
	}
	if res.Account.AccessToken != "new-token" {
		t.Errorf("serving account's AccessToken = %q, want new-token", res.Account.AccessToken)
	}
	if len(up.calls) != 2 {
		t.Errorf("upstream calls = %v, want 2 (401, then retry with renewed token)", up.calls)
	}
}

func TestEstablishNonRetriableStatusReturnsImmediately(t *testing.T) {
	up := &scriptedUpstream{byAccount: map[string][]int{"A": {400}}}
	d, _ := newDispatcher(t, []*model.Account{relayAcct("A"), relayAcct("B")}, up)

	res, err := d.Establish(context.Background(), DefaultFamily(2), buildRequest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Response.StatusCode != 400 {
		t.Errorf("status = %d, want 400 passed straight through", res.Response.StatusCode)
	}
	if len(up.calls) != 1 {
		t.Errorf("upstream calls = %v, want exactly 1 (no retry for a non-retriable status)", up.calls)
	}
}

func TestEstablishNoUsableAccountReturnsError(t *testing.T) {
	up := &scriptedUpstream{byAccount: map[string][]int{}}
	d, _ := newDispatcher(t, nil, up)

	_, err := d.Establish(context.Background(), DefaultFamily(0), buildRequest)
	if _, ok := err.(ErrNoUsableAccount); !ok {
		t.Errorf("err = %v, want ErrNoUsableAccount", err)
	}
}

func TestSimplifiedStreamFamilyCapsAttemptsAtThree(t *testing.T) {
	f := SimplifiedStreamFamily(10)
	if f.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", f.MaxAttempts)
	}
	if f.SameAccountRetry {
		t.Error("SimplifiedStreamFamily must not retry on the same account")
	}
	if f.CooldownPolicy != RefreshCooldownPolicy {
		t.Error("SimplifiedStreamFamily must use the refresh-time cooldown policy")
	}
}

func TestSimplifiedStreamFamilyExhaustsAllAccountsAndSwitches(t *testing.T) {
	up := &scriptedUpstream{byAccount: map[string][]int{"A": {429}, "B": {429}}}
	d, _ := newDispatcher(t, []*model.Account{relayAcct("A"), relayAcct("B")}, up)

	res, err := d.Establish(context.Background(), SimplifiedStreamFamily(2), buildRequest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Response.StatusCode != 429 {
		t.Errorf("status = %d, want 429 (both accounts exhausted)", res.Response.StatusCode)
	}
	if strings.Join(up.calls, ",") != "A,B" {
		t.Errorf("calls = %v, want [A B] (no same-account retry in this family)", up.calls)
	}
}

func TestDecodeBodyBrotliAware(t *testing.T) {
	resp := &http.Response{Header: http.Header{}, Body: http.NoBody}
	r := DecodeBody(resp)
	if r == nil {
		t.Fatal("DecodeBody returned nil")
	}
}

func TestGzipWriterForRespectsAcceptEncoding(t *testing.T) {
	_, _, used := GzipWriterFor("gzip, deflate", nil)
	if !used {
		t.Error("expected gzip to be used when advertised")
	}
	_, _, used2 := GzipWriterFor("identity", nil)
	if used2 {
		t.Error("expected gzip not to be used when not advertised")
	}
}
