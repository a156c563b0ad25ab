// Management endpoints: thin wrappers around STORE plus
// SELECTOR.set/REFRESHER.refresh, per spec.md §4.6's "Management
// operations" paragraph.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/router-for-me/acctproxy/internal/clockid"
	"github.com/router-for-me/acctproxy/internal/lifecycle"
	"github.com/router-for-me/acctproxy/internal/model"
	"github.com/router-for-me/acctproxy/internal/oauthflow"
)

// statusLabel derives the human status label from spec.md §6's "UI
// state labels" paragraph: active | expiring-soon | expired |
// cooldown | disabled | unknown.
func statusLabel(a *model.Account, now time.Time) string {
	switch {
	case a.Disabled:
		return "disabled"
	case lifecycle.IsCoolingDown(a, now):
		return "cooldown"
	case lifecycle.IsExpired(a, now):
		return "expired"
	case a.Expire != nil && lifecycle.IsNearExpiry(a, lifecycle.DefaultNearExpiry, now):
		return "expiring-soon"
	case lifecycle.Usable(a, now):
		return "active"
	default:
		return "unknown"
	}
}

func (s *Server) handleListAccounts(c *gin.Context) {
	now := s.Clock.Now()
	seq := s.Store.Snapshot()
	out := make([]gin.H, 0, len(seq))
	for _, a := range seq {
		out = append(out, gin.H{
			"id":       a.ID,
			"kind":     a.Kind,
			"email":    a.Email,
			"disabled": a.Disabled,
			"status":   statusLabel(a, now),
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	id := c.Param("id")
	if !s.accountExists(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err := s.Store.Remove(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleForceRefresh(c *gin.Context) {
	id := c.Param("id")
	a := s.findAccount(id)
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	renewed, err := s.Refresher.Refresh(c.Request.Context(), a)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"refreshed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": true, "expire": renewed.Expire})
}

func (s *Server) handleDisable(c *gin.Context) {
	s.setDisabled(c, true)
}

func (s *Server) handleEnable(c *gin.Context) {
	s.setDisabled(c, false)
}

func (s *Server) setDisabled(c *gin.Context, disabled bool) {
	id := c.Param("id")
	found := false
	s.Store.Update(id, func(a *model.Account) bool {
		found = true
		a.Disabled = disabled
		return true
	})
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleActivate(c *gin.Context) {
	id := c.Param("id")
	seq := s.Store.Snapshot()
	idx := -1
	for i, a := range seq {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.Selector.Set(idx)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleImport(c *gin.Context) {
	var ts oauthflow.TokenSet
	if err := c.ShouldBindJSON(&ts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token set"})
		return
	}
	account := s.accountFromTokenSet(&ts)
	if err := s.Store.Append(account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": account.ID})
}

type relayRequest struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

func (s *Server) handleAddRelay(c *gin.Context) {
	var req relayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid relay payload"})
		return
	}
	a := &model.Account{
		ID:        clockid.NewID(),
		Kind:      model.KindRelay,
		CreatedAt: s.Clock.Now(),
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		APIKey:    req.APIKey,
	}
	if err := s.Store.Append(a); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": a.ID})
}

func (s *Server) accountExists(id string) bool {
	return s.findAccount(id) != nil
}

func (s *Server) findAccount(id string) *model.Account {
	for _, a := range s.Store.Snapshot() {
		if a.ID == id {
			return a
		}
	}
	return nil
}
