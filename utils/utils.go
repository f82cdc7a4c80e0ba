package utils

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GenerateDashlessUUID creates a new UUID v4 and returns its string representation
// with all dashes removed.
func GenerateDashlessUUID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// NormalizeYouTubeID extracts the video id from a pasted YouTube URL.
// youtube.com/watch URLs yield their "v" parameter, youtu.be URLs their path.
// Anything else, including a bare id or an unparsable URL, is returned unchanged.
func NormalizeYouTubeID(raw string) string {
	if !strings.Contains(raw, "youtube.com") && !strings.Contains(raw, "youtu.be") {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}

	switch {
	case strings.Contains(raw, "youtube.com/watch"):
		if v := u.Query().Get("v"); v != "" {
			return v
		}
	case strings.Contains(raw, "youtu.be/"):
		if id := strings.TrimPrefix(u.Path, "/"); id != "" {
			return id
		}
	}
	return raw
}

// APIError is a standard structure for returning errors as JSON.
type APIError struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// GinError sends a JSON error response with a specific status code.
// It logs the error server-side as well.
func GinError(c *gin.Context, statusCode int, message string) {
	logrus.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"status": statusCode,
	}).Warn(message)
	c.AbortWithStatusJSON(statusCode, APIError{Error: message})
}

// GinBadRequest sends a 400 Bad Request error response.
func GinBadRequest(c *gin.Context, message string) {
	GinError(c, http.StatusBadRequest, message)
}

// GinUnauthorized sends a 401 Unauthorized error response.
func GinUnauthorized(c *gin.Context, message string) {
	GinError(c, http.StatusUnauthorized, message)
}

// GinRedirectToLogin sends a 401 carrying the login location the client should navigate to.
func GinRedirectToLogin(c *gin.Context, message, location string) {
	logrus.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Info("Redirecting anonymous request to login")
	c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Error: message, Redirect: location})
}

// GinNotFound sends a 404 Not Found error response.
func GinNotFound(c *gin.Context, message string) {
	GinError(c, http.StatusNotFound, message)
}

// GinTooManyRequests sends a 429 Too Many Requests error response.
func GinTooManyRequests(c *gin.Context, message string) {
	GinError(c, http.StatusTooManyRequests, message)
}

// GinInternalServerError sends a 500 Internal Server Error response.
func GinInternalServerError(c *gin.Context, message string) {
	logrus.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error(message)
	c.AbortWithStatusJSON(http.StatusInternalServerError, APIError{Error: message})
}
