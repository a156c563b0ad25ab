package dispatcher

import (
	"bytes"
	"net/http"

	"github.com/router-for-me/acctproxy/internal/clockid"
	"github.com/router-for-me/acctproxy/internal/model"
)

// BuildUpstreamRequest constructs the request envelope described in
// spec.md §4.6: inbound headers copied through, then augmented with
// the fixed set of upstream-identifying headers. A fresh Session_id is
// minted on every call, including same-account retries, as the spec
// requires "per attempt".
func BuildUpstreamRequest(method, upstreamBaseURL, path string, body []byte, inbound http.Header, stream bool, a *model.Account) (*http.Request, error) {
	base := upstreamBaseURL
	if a.Kind == model.KindRelay && a.BaseURL != "" {
		base = a.BaseURL
	}
	req, err := http.NewRequest(method, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	for k, vv := range inbound {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	bearer := a.AccessToken
	if a.Kind == model.KindRelay {
		bearer = a.APIKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Openai-Beta", "responses=experimental")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Version", "0.21.0")
	req.Header.Set("Session_id", clockid.NewID())
	if a.AccountID != "" {
		req.Header.Set("Chatgpt-Account-Id", a.AccountID)
	}
	req.Header.Set("Originator", "codex_cli_rs")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	req.ContentLength = int64(len(body))
	return req, nil
}
