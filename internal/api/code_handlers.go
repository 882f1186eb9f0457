package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type publishCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// handlePublishCode accepts a verification code from an external channel and
// parks it for the agent to pick up.
func (s *Server) handlePublishCode(c *gin.Context) {
	account, ok := GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req publishCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	s.codes.Publish(account, req.Code)
	c.JSON(http.StatusOK, gin.H{"pending": true})
}

// handleConsumeCode hands the pending code to the caller exactly once.
func (s *Server) handleConsumeCode(c *gin.Context) {
	account, ok := GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	code, ok := s.codes.Consume(account)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending verification code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

// handlePeekCode reports whether a code is pending without consuming it, so
// a UI can poll before attempting the one-shot consume.
func (s *Server) handlePeekCode(c *gin.Context) {
	account, ok := GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": s.codes.Peek(account)})
}
