// Package handlers provides HTTP API request handlers for the relay server.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/authsock/authsock/internal/authstore"
)

// TokenHandler handles HTTP requests for token administration.
type TokenHandler struct {
	store *authstore.Store
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(store *authstore.Store) *TokenHandler {
	return &TokenHandler{store: store}
}

// IssueTokenRequest represents the request body for issuing a token.
type IssueTokenRequest struct {
	Subject string `json:"subject" binding:"required"`
}

// TokenResponse represents a token in API responses. The secret value is only
// echoed on issue.
type TokenResponse struct {
	ID        string `json:"id"`
	Token     string `json:"token,omitempty"`
	Subject   string `json:"subject"`
	Revoked   bool   `json:"revoked"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toTokenResponse(tok *authstore.Token, includeSecret bool) *TokenResponse {
	resp := &TokenResponse{
		ID:        tok.ID,
		Subject:   tok.Subject,
		Revoked:   tok.Revoked,
		CreatedAt: tok.CreatedAt.Format(time.RFC3339),
	}
	if includeSecret {
		resp.Token = tok.Token
	}
	return resp
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Issue handles POST /api/tokens - issues a new token for a subject.
func (h *TokenHandler) Issue(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "subject is required")
		return
	}

	tok, err := h.store.Issue(c.Request.Context(), req.Subject)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token: "+err.Error())
		return
	}
	c.JSON(http.StatusCreated, toTokenResponse(tok, true))
}

// List handles GET /api/tokens - lists issued tokens without secrets.
func (h *TokenHandler) List(c *gin.Context) {
	tokens, err := h.store.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list tokens: "+err.Error())
		return
	}
	resp := make([]*TokenResponse, 0, len(tokens))
	for _, tok := range tokens {
		resp = append(resp, toTokenResponse(tok, false))
	}
	c.JSON(http.StatusOK, resp)
}

// Revoke handles DELETE /api/tokens/:id - revokes a token.
func (h *TokenHandler) Revoke(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Token ID is required")
		return
	}

	if err := h.store.Revoke(c.Request.Context(), id); err != nil {
		if errors.Is(err, authstore.ErrTokenNotFound) {
			sendError(c, http.StatusNotFound, "TOKEN_NOT_FOUND", "Token "+id+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke token: "+err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the token handler routes on a Gin router group.
func (h *TokenHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/tokens", h.Issue)
	rg.GET("/tokens", h.List)
	rg.DELETE("/tokens/:id", h.Revoke)
}
