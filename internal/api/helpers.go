package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/acctproxy/internal/dispatcher"
)

func accountCount(s *Server) int {
	return len(s.Store.Snapshot())
}

// respondOnDispatchError handles the ErrNoUsableAccount kind from
// spec.md §7 and any other Establish error; returns false if it
// already wrote a response (caller should stop), true if dispatch
// succeeded and result is safe to use.
func respondOnDispatchError(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	var noUsable dispatcher.ErrNoUsableAccount
	if errors.As(err, &noUsable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": noUsable.Error()})
		return false
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	return false
}

func logForwardError(c *gin.Context, err error) {
	log.WithError(err).WithField("request_id", c.GetString("request_id")).Warn("api: error forwarding response")
}
