package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/agrichain-api/internal/service"
)

type JourneyHandler struct {
	journeys *service.JourneyService
}

func NewJourneyHandler(journeys *service.JourneyService) *JourneyHandler {
	return &JourneyHandler{journeys: journeys}
}

func (h *JourneyHandler) Lookup(c *gin.Context) {
	journey, err := h.journeys.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, journey)
}
