package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scholarchat/chat_backend/chat"
)

// respondError maps a taxonomy error to its HTTP status. Every kind gets a
// distinct status on the synchronous path. Storage outages override the
// caller's message so a 503 never carries a record-level explanation.
func respondError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case chat.IsInvalidArgument(err):
		status = http.StatusBadRequest
	case chat.IsForbidden(err):
		status = http.StatusForbidden
	case chat.IsNotFound(err):
		status = http.StatusNotFound
	case chat.IsConflict(err):
		status = http.StatusConflict
	case chat.IsUnavailable(err):
		status = http.StatusServiceUnavailable
		message = "Storage temporarily unavailable"
	}
	c.JSON(status, gin.H{"error": message})
}
