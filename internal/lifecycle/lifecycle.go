// Package lifecycle holds the pure classifiers and cooldown policies
// that decide whether an Account may be selected, and how a failure
// is recorded against it. Every function here is side-effect free;
// callers are responsible for persisting any resulting mutation via
// the store.
package lifecycle

import (
	"time"

	"github.com/router-for-me/acctproxy/internal/model"
)

// DefaultNearExpiry is the default near-expiry horizon Δ.
const DefaultNearExpiry = 10 * time.Minute

// RequestCooldown is the harsh, uniform cooldown applied on
// request-path failures.
const RequestCooldown = 3 * time.Hour

func IsCoolingDown(a *model.Account, now time.Time) bool {
	return a.CooldownUntil != nil && a.CooldownUntil.After(now)
}

func IsExpired(a *model.Account, now time.Time) bool {
	return a.Expire != nil && !a.Expire.After(now)
}

func IsNearExpiry(a *model.Account, delta time.Duration, now time.Time) bool {
	if a.Expire == nil {
		return true
	}
	return a.Expire.Sub(now) <= delta
}

func Usable(a *model.Account, now time.Time) bool {
	return !a.Disabled && !IsCoolingDown(a, now) && !IsExpired(a, now)
}

// retriableCodes is the set of upstream statuses that drive the
// request-time cooldown policy (§4.2 first bullet).
var retriableCodes = map[int]bool{
	401: true, 403: true, 408: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
}

// IsRetriableStatus reports whether s belongs to the spec's retriable
// set that drives the request-time cooldown policy. The dispatcher
// keeps its own copy of the same set for its retry/switch decision.
func IsRetriableStatus(s int) bool { return retriableCodes[s] }

// MarkRequestFailure applies the harsh, uniform request-path cooldown
// policy: any status in the retriable set sets a 3-hour cooldown;
// anything else leaves cooldown_until untouched. fail_count and
// last_error_code are always recorded.
func MarkRequestFailure(a *model.Account, status int, now time.Time) {
	a.FailCount++
	code := status
	a.LastErrorCode = &code
	if IsRetriableStatus(status) {
		until := now.Add(RequestCooldown)
		a.CooldownUntil = &until
	}
}

// MarkRefreshFailure applies the milder, per-code/exponential
// refresh-path cooldown policy. This is a distinct policy from
// MarkRequestFailure and must never be merged with it: the spec
// requires the proxy to carry both, deliberately.
func MarkRefreshFailure(a *model.Account, status int, now time.Time) {
	a.FailCount++
	code := status
	a.LastErrorCode = &code

	var cd time.Duration
	switch {
	case status == 429:
		cd = 30 * time.Minute
	case status == 401 || status == 403:
		cd = 10 * time.Minute
	case status == 408 || (status >= 500 && status <= 599):
		exp := a.FailCount
		if exp > 5 {
			exp = 5
		}
		cd = (1 << uint(exp)) * 60 * time.Second
		if cd > 30*time.Minute {
			cd = 30 * time.Minute
		}
	default:
		return
	}
	until := now.Add(cd)
	a.CooldownUntil = &until
}

// MarkRefreshSuccess clears failure state and installs the renewed
// credentials' bookkeeping fields. Callers still set the token fields
// themselves; this only resets the shared lifecycle bookkeeping.
func MarkRefreshSuccess(a *model.Account, now time.Time) {
	a.FailCount = 0
	a.LastErrorCode = nil
	a.CooldownUntil = nil
	a.LastRefresh = &now
}
