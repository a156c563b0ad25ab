package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/router-for-me/acctproxy/internal/dispatcher"
	"github.com/router-for-me/acctproxy/internal/model"
	"github.com/router-for-me/acctproxy/internal/translator"
)

func (s *Server) handleChatCompletions(c *gin.Context) {
	chatBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	stream := isStreamRequested(chatBody)

	responsesBody, shortToLong, err := translator.ChatToResponses(chatBody)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat payload"})
		return
	}

	family := dispatcher.DefaultFamily(accountCount(s))
	if stream {
		family = dispatcher.SimplifiedStreamFamily(accountCount(s))
	}

	result, err := s.Dispatcher.Establish(c.Request.Context(), family, func(a *model.Account) (*http.Request, error) {
		// The upstream request always asks to stream, regardless of
		// whether the Chat caller did: translator.ChatToResponses sets
		// "stream":true unconditionally, since the SSE response.completed
		// record is how both the stream and non-stream Chat paths read
		// the result back (see ResponsesToChatNonStream).
		return dispatcher.BuildUpstreamRequest(http.MethodPost, s.Dispatcher.UpstreamBaseURL, "/responses", responsesBody, c.Request.Header, true, a)
	})
	if !respondOnDispatchError(c, err) {
		return
	}

	if stream {
		if werr := dispatcher.ForwardStreamTranslated(c.Writer, result.Response, shortToLong, nil); werr != nil {
			logForwardError(c, werr)
		}
		return
	}
	convert := func(sseBlob []byte) []byte {
		return translator.ResponsesToChatNonStream(sseBlob, shortToLong)
	}
	if werr := dispatcher.ForwardTranslatedBuffered(c.Writer, result.Response, convert); werr != nil {
		logForwardError(c, werr)
	}
}
