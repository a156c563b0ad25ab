package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/router-for-me/acctproxy/internal/dispatcher"
	"github.com/router-for-me/acctproxy/internal/model"
)

// handlePassthrough implements spec.md §6's "ALL /v1/* otherwise":
// generic passthrough forward preserving method, with the path
// forwarded verbatim to the upstream base (outbound wire dialect rule:
// "other paths forwarded verbatim").
func (s *Server) handlePassthrough(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		body = b
	}
	stream := isStreamRequested(body)
	method := c.Request.Method
	path := c.Request.URL.Path

	family := dispatcher.DefaultFamily(accountCount(s))
	result, err := s.Dispatcher.Establish(c.Request.Context(), family, func(a *model.Account) (*http.Request, error) {
		return dispatcher.BuildUpstreamRequest(method, s.Dispatcher.UpstreamBaseURL, path, body, c.Request.Header, stream, a)
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
