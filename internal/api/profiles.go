package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"agent-overlay-server/internal/profile"
)

// maxProfileValueBytes bounds a single stored profile value.
const maxProfileValueBytes = 64 * 1024

func (s *Server) handleListProfiles(c *gin.Context) {
	account, ok := GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	entries, err := s.profiles.List(c.Request.Context(), account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list profiles"})
		return
	}
	if entries == nil {
		entries = []profile.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"profiles": entries})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	account, ok := GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	value, err := s.profiles.Get(c.Request.Context(), account, c.Param("key"))
	if errors.Is(err, profile.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile key not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
}

func (s *Server) handlePutProfile(c *gin.Context) {
	account, ok := GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProfileValueBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(body) > maxProfileValueBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "profile value too large"})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile value must be valid JSON"})
		return
	}

	if err := s.profiles.Set(c.Request.Context(), account, c.Param("key"), body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key")})
}

func (s *Server) handleDeleteProfile(c *gin.Context) {
	account, ok := GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	err := s.profiles.Delete(c.Request.Context(), account, c.Param("key"))
	if errors.Is(err, profile.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile key not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key")})
}
