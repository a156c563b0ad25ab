// Package model defines the Account record persisted by the store and
// shared by every other component.
package model

import "time"

// Kind discriminates the two Account variants.
type Kind string

const (
	KindOAuth Kind = "oauth"
	KindRelay Kind = "relay"
)

// Account is a tagged record: Kind selects which of the variant-specific
// fields below are meaningful. Common fields are always meaningful.
type Account struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Disabled bool   `json:"disabled"`

	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`

	FailCount     int        `json:"fail_count"`
	LastErrorCode *int       `json:"last_error_code,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`

	// oauth variant
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	IDToken      string     `json:"id_token,omitempty"`
	AccountID    string     `json:"account_id,omitempty"`
	Email        string     `json:"email,omitempty"`
	Expire       *time.Time `json:"expire,omitempty"`
	LastRefresh  *time.Time `json:"last_refresh,omitempty"`

	// relay variant
	Name    string `json:"name,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
}

// Clone returns a deep copy, so callers holding a STORE snapshot never
// mutate shared state in place.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.LastUsed != nil {
		t := *a.LastUsed
		c.LastUsed = &t
	}
	if a.LastErrorCode != nil {
		v := *a.LastErrorCode
		c.LastErrorCode = &v
	}
	if a.CooldownUntil != nil {
		t := *a.CooldownUntil
		c.CooldownUntil = &t
	}
	if a.Expire != nil {
		t := *a.Expire
		c.Expire = &t
	}
	if a.LastRefresh != nil {
		t := *a.LastRefresh
		c.LastRefresh = &t
	}
	return &c
}

// CloneSeq deep-copies a full Account sequence.
func CloneSeq(seq []*Account) []*Account {
	out := make([]*Account, len(seq))
	for i, a := range seq {
		out[i] = a.Clone()
	}
	return out
}
