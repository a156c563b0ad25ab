// OAuth boundary handlers. Per spec.md §1 the embedded web UI, the CLI
// login helper, and the HTML OAuth redirect pages are external
// collaborators out of scope for the core; what's implemented here is
// only what the core consumes: a redirect to the provider carrying
// PKCE state, and the callback that exchanges the code and
// manufactures an Account.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/router-for-me/acctproxy/internal/clockid"
	"github.com/router-for-me/acctproxy/internal/model"
	"github.com/router-for-me/acctproxy/internal/oauthflow"
)

func (s *Server) handleOAuthStart(c *gin.Context) {
	pkce, err := oauthflow.GeneratePKCECodes()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start oauth flow"})
		return
	}
	state := clockid.NewID()

	s.pendingMu.Lock()
	if s.pending == nil {
		s.pending = map[string]*oauthflow.PKCECodes{}
	}
	s.pending[state] = pkce
	s.pendingMu.Unlock()

	c.Redirect(http.StatusFound, s.Provider.AuthorizeURL(state, pkce))
}

func (s *Server) handleOAuthCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	s.pendingMu.Lock()
	pkce, ok := s.pending[state]
	if ok {
		delete(s.pending, state)
	}
	s.pendingMu.Unlock()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or expired state"})
		return
	}

	ts, _, err := s.Provider.ExchangeCode(c.Request.Context(), code, pkce)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
		return
	}

	account := s.accountFromTokenSet(ts)
	if err := s.Store.Append(account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": account.ID, "email": account.Email})
}

func (s *Server) accountFromTokenSet(ts *oauthflow.TokenSet) *model.Account {
	now := s.Clock.Now()
	a := &model.Account{
		ID:           clockid.NewID(),
		Kind:         model.KindOAuth,
		CreatedAt:    now,
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		IDToken:      ts.IDToken,
	}
	if ts.ExpiresIn > 0 {
		exp := oauthflow.ExpiresAt(now, ts.ExpiresIn)
		a.Expire = &exp
	}
	if ts.IDToken != "" {
		if claims, err := oauthflow.ParseIDToken(ts.IDToken); err == nil {
			a.Email = claims.Email
			a.AccountID = claims.AccountID()
		}
	}
	return a
}
