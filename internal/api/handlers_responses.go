package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/router-for-me/acctproxy/internal/dispatcher"
	"github.com/router-for-me/acctproxy/internal/model"
)

// isStreamRequested scans a request body for a top-level "stream":true,
// per spec.md §6's generic passthrough rule, also used by the three
// dialect endpoints.
func isStreamRequested(body []byte) bool {
	return gjson.GetBytes(body, "stream").Bool()
}

func (s *Server) handleResponses(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	stream := isStreamRequested(body)

	family := dispatcher.DefaultFamily(accountCount(s))
	result, err := s.Dispatcher.Establish(c.Request.Context(), family, func(a *model.Account) (*http.Request, error) {
		return dispatcher.BuildUpstreamRequest(http.MethodPost, s.Dispatcher.UpstreamBaseURL, "/responses", body, c.Request.Header, stream, a)
	})
	if !respondOnDispatchError(c, err) {
		return
	}

	if stream {
		if werr := dispatcher.ForwardStreamPassthrough(c.Writer, result.Response); werr != nil {
			logForwardError(c, werr)
		}
		return
	}
	if werr := dispatcher.ForwardBuffered(c.Writer, result.Response, c.GetHeader("Accept-Encoding")); werr != nil {
		logForwardError(c, werr)
	}
}
