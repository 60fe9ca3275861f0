package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paincake00/geopromo/internal/entity"
)

// UpdateLocationInput тело запроса обновления координат. Без timestamp используется время приема.
type UpdateLocationInput struct {
	DeviceID  string     `json:"device_id" binding:"required"`
	CompanyID string     `json:"company_id" binding:"required"`
	Latitude  *float64   `json:"latitude" binding:"required"`
	Longitude *float64   `json:"longitude" binding:"required"`
	Timestamp *time.Time `json:"timestamp"`
}

func (h *Handler) updateLocation(c *gin.Context) {
	var input UpdateLocationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	upd := entity.LocationUpdate{
		DeviceID:  input.DeviceID,
		CompanyID: input.CompanyID,
		Latitude:  *input.Latitude,
		Longitude: *input.Longitude,
		Timestamp: h.Clock.Now(),
	}
	if input.Timestamp != nil {
		upd.Timestamp = input.Timestamp.UTC()
	}

	res, err := h.Dispatcher.Submit(c.Request.Context(), upd)
	if err != nil {
		var partial *entity.PartialError
		if errors.As(err, &partial) {
			// Часть переходов сохранена: клиент получает и их, и список сбоев.
			c.JSON(http.StatusMultiStatus, res)
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
