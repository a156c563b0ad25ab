// Package refresher obtains new credentials for an OAuth Account,
// de-duplicating concurrent refreshes per account id via
// golang.org/x/sync/singleflight (a direct dependency already declared
// in the teacher's go.mod for exactly this purpose) and running a
// jittered periodic sweep over near-expiry Accounts.
package refresher

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/router-for-me/acctproxy/internal/clockid"
	"github.com/router-for-me/acctproxy/internal/lifecycle"
	"github.com/router-for-me/acctproxy/internal/model"
	"github.com/router-for-me/acctproxy/internal/oauthflow"
	"github.com/router-for-me/acctproxy/internal/store"
)

// ErrNoRenewal is returned when refresh did not produce a renewed
// account: either another refresh for the same id was already in
// flight, or the upstream refresh call failed.
var ErrNoRenewal = errors.New("refresher: no renewed account")

type Refresher struct {
	store    *store.Store
	provider *oauthflow.Provider
	clock    clockid.Clock

	group    singleflight.Group
	inFlight sync.Map // account id -> struct{}, tracks calls currently in doRefresh
}

func New(st *store.Store, provider *oauthflow.Provider, clock clockid.Clock) *Refresher {
	return &Refresher{store: st, provider: provider, clock: clock}
}

// Refresh performs the refresh(a) contract from spec.md §4.3. a must
// be a kind=oauth Account with a refresh_token; anything else is a
// precondition violation the caller should not make (relay accounts
// never participate in refresh).
func (r *Refresher) Refresh(ctx context.Context, a *model.Account) (*model.Account, error) {
	if a.Kind != model.KindOAuth || a.RefreshToken == "" {
		return nil, ErrNoRenewal
	}

	// Per spec.md §4.3, a concurrent request for an id already being
	// refreshed returns "no renewed account" immediately rather than
	// waiting on the in-flight call's result. The process-wide
	// in-flight set below gives that immediate-return behavior;
	// singleflight.Group still backs the actual upstream call so a
	// race between the check and the store is also collapsed into at
	// most one network request.
	if _, already := r.inFlight.LoadOrStore(a.ID, struct{}{}); already {
		return nil, ErrNoRenewal
	}
	defer r.inFlight.Delete(a.ID)

	v, err, _ := r.group.Do(a.ID, func() (interface{}, error) {
		return r.doRefresh(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Account), nil
}

func (r *Refresher) doRefresh(ctx context.Context, a *model.Account) (*model.Account, error) {
	now := r.clock.Now()
	ts, status, err := r.provider.RefreshTokens(ctx, a.RefreshToken)
	if err != nil {
		r.store.Update(a.ID, func(acc *model.Account) bool {
			lifecycle.MarkRefreshFailure(acc, status, now)
			return true
		})
		log.WithError(err).WithField("account_id", a.ID).Warn("refresher: refresh failed")
		return nil, ErrNoRenewal
	}

	var email, accountID string
	if ts.IDToken != "" {
		if claims, cerr := oauthflow.ParseIDToken(ts.IDToken); cerr == nil {
			email = claims.Email
			accountID = claims.AccountID()
		}
	}

	var renewed *model.Account
	err = r.store.Update(a.ID, func(acc *model.Account) bool {
		acc.AccessToken = ts.AccessToken
		if ts.RefreshToken != "" {
			acc.RefreshToken = ts.RefreshToken
		}
		if ts.IDToken != "" {
			acc.IDToken = ts.IDToken
		}
		if email != "" {
			acc.Email = email
		}
		if accountID != "" {
			acc.AccountID = accountID
		}
		if ts.ExpiresIn > 0 {
			exp := oauthflow.ExpiresAt(now, ts.ExpiresIn)
			acc.Expire = &exp
		}
		lifecycle.MarkRefreshSuccess(acc, now)
		renewed = acc.Clone()
		return true
	})
	if err != nil {
		return nil, err
	}
	if renewed == nil {
		return nil, ErrNoRenewal
	}
	return renewed, nil
}

// Sweep runs once, calling Refresh on every non-disabled Account
// satisfying is_near_expiry(·, 10min). Failures are absorbed.
func (r *Refresher) Sweep(ctx context.Context) {
	now := r.clock.Now()
	for _, a := range r.store.Snapshot() {
		if a.Disabled || a.Kind != model.KindOAuth {
			continue
		}
		if !lifecycle.IsNearExpiry(a, lifecycle.DefaultNearExpiry, now) {
			continue
		}
		if _, err := r.Refresh(ctx, a); err != nil {
			log.WithError(err).WithField("account_id", a.ID).Debug("refresher: sweep refresh skipped")
		}
	}
}

// jitteredInterval returns 15 minutes ± up to 3 minutes of uniform
// jitter, never less than 1 minute (the floor is unreachable given the
// stated bounds but is kept explicit for clarity).
func jitteredInterval() time.Duration {
	base := 15 * time.Minute
	jitter := time.Duration(rand.Int63n(int64(6*time.Minute))) - 3*time.Minute
	d := base + jitter
	if d < time.Minute {
		d = time.Minute
	}
	return d
}

// RunSweepLoop runs Sweep on a jittered 15min±3min cadence until ctx
// is cancelled.
func (r *Refresher) RunSweepLoop(ctx context.Context) {
	for {
		t := time.NewTimer(jitteredInterval())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			r.Sweep(ctx)
		}
	}
}
