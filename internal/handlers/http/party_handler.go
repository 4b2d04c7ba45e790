package http

import (
	"errors"
	"net/http"

	"cinesync/internal/core/domain"
	"cinesync/internal/core/ports"
	apperrors "cinesync/pkg/errors"

	"github.com/gin-gonic/gin"
)

// PartyHandler exposes party creation and the pre-join flow over HTTP.
// The live protocol lives on the websocket gateway; these endpoints
// produce and describe the records the engine consumes.
type PartyHandler struct {
	parties  ports.PartyService
	registry ports.Registry
}

func NewPartyHandler(parties ports.PartyService, registry ports.Registry) *PartyHandler {
	return &PartyHandler{
		parties:  parties,
		registry: registry,
	}
}

func (h *PartyHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/parties", h.CreateParty)
		api.GET("/parties/:code", h.GetParty)
		api.POST("/parties/:code/join", h.JoinParty)
	}
}

func (h *PartyHandler) CreateParty(c *gin.Context) {
	var req struct {
		Name     string        `json:"name" binding:"required,min=1,max=100"`
		MovieID  string        `json:"movie_id" binding:"required"`
		HostID   domain.UserID `json:"host_id" binding:"required"`
		Username string        `json:"username" binding:"required"`
		Password string        `json:"password"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	party, err := h.parties.Create(c.Request.Context(), req.Name, req.MovieID, req.HostID, req.Username, req.Password)
	if err != nil {
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to create party", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":       party.Code,
		"name":       party.Name,
		"movie_id":   party.MovieID,
		"expires_at": party.ExpiresAt,
	})
}

func (h *PartyHandler) GetParty(c *gin.Context) {
	code := domain.PartyCode(c.Param("code"))

	party, err := h.parties.Info(c.Request.Context(), code)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":          party.Name,
		"movie_id":      party.MovieID,
		"protected":     party.Protected(),
		"participants":  len(party.Participants),
		"live_sessions": h.registry.RoomSize(code),
	})
}

// JoinParty validates the password before the socket is opened and
// hands back a short-lived join ticket plus the current playback
// state.
func (h *PartyHandler) JoinParty(c *gin.Context) {
	code := domain.PartyCode(c.Param("code"))

	var req struct {
		UserID   domain.UserID `json:"user_id" binding:"required"`
		Password string        `json:"password"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	party, ticket, err := h.parties.Authorize(c.Request.Context(), code, req.UserID, req.Password)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":     party.Code,
		"name":     party.Name,
		"movie_id": party.MovieID,
		"position": party.Position,
		"playing":  party.Playing,
		"ticket":   ticket,
	})
}

func (h *PartyHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrPartyNotFound):
		c.Error(apperrors.NewNotFoundError("party"))
	case errors.Is(err, domain.ErrInvalidPassword):
		c.Error(apperrors.NewUnauthorizedError("invalid password"))
	default:
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "party store unavailable", http.StatusServiceUnavailable))
	}
}
