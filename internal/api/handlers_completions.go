package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/router-for-me/acctproxy/internal/dispatcher"
	"github.com/router-for-me/acctproxy/internal/model"
	"github.com/router-for-me/acctproxy/internal/translator"
)

func (s *Server) handleCompletions(c *gin.Context) {
	completionsBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	stream := isStreamRequested(completionsBody)

	chatBody := translator.CompletionsPromptToChatMessage(completionsBody)
	responsesBody, shortToLong, err := translator.ChatToResponses(chatBody)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid completions payload"})
		return
	}

	family := dispatcher.DefaultFamily(accountCount(s))
	if stream {
		family = dispatcher.SimplifiedStreamFamily(accountCount(s))
	}

	result, err := s.Dispatcher.Establish(c.Request.Context(), family, func(a *model.Account) (*http.Request, error) {
		// Always request SSE from upstream, independent of the caller's
		// stream flag — see the matching comment in handleChatCompletions.
		return dispatcher.BuildUpstreamRequest(http.MethodPost, s.Dispatcher.UpstreamBaseURL, "/responses", responsesBody, c.Request.Header, true, a)
	})
	if !respondOnDispatchError(c, err) {
		return
	}

	if stream {
		if werr := dispatcher.ForwardStreamTranslated(c.Writer, result.Response, shortToLong, translator.ChatChunkToCompletionsChunk); werr != nil {
			logForwardError(c, werr)
		}
		return
	}
	convert := func(sseBlob []byte) []byte {
		chat := translator.ResponsesToChatNonStream(sseBlob, shortToLong)
		return translator.ChatCompletionToTextCompletion(chat)
	}
	if werr := dispatcher.ForwardTranslatedBuffered(c.Writer, result.Response, convert); werr != nil {
		logForwardError(c, werr)
	}
}
