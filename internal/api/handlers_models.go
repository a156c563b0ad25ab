package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

var staticModelIDs = []string{
	"gpt-5",
	"gpt-5-minimal",
	"gpt-5-low",
	"gpt-5-medium",
	"gpt-5-high",
	"codex-mini-latest",
}

func (s *Server) handleModels(c *gin.Context) {
	data := make([]gin.H, 0, len(staticModelIDs))
	for _, id := range staticModelIDs {
		data = append(data, gin.H{"id": id, "object": "model"})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
