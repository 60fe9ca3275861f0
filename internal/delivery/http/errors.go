package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paincake00/geopromo/internal/entity"
)

const (
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidParameter   = "invalid_parameter"
	codeInvalidCoordinates = "invalid_coordinates"
	codeUnknownDevice      = "unknown_device"
	codeUnknownCompany     = "unknown_company"
	codeOutOfOrder         = "out_of_order_update"
	codeZoneNotFound       = "zone_not_found"
	codeInvalidQuery       = "invalid_query"
	codeUnavailable        = "unavailable"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code})
}

// classify сопоставляет доменную ошибку со статусом HTTP и кодом ответа.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, entity.ErrInvalidCoordinates):
		return http.StatusBadRequest, codeInvalidCoordinates
	case errors.Is(err, entity.ErrInvalidQuery):
		return http.StatusBadRequest, codeInvalidQuery
	case errors.Is(err, entity.ErrUnknownDevice):
		return http.StatusNotFound, codeUnknownDevice
	case errors.Is(err, entity.ErrUnknownCompany):
		return http.StatusNotFound, codeUnknownCompany
	case errors.Is(err, entity.ErrZoneNotFound):
		return http.StatusNotFound, codeZoneNotFound
	case errors.Is(err, entity.ErrOutOfOrderUpdate):
		return http.StatusConflict, codeOutOfOrder
	case errors.Is(err, entity.ErrQueueTimeout),
		errors.Is(err, entity.ErrDispatcherClosed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}

// respondError отвечает ошибкой. Внутренние ошибки пишутся в журнал, клиент видит только код.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := classify(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = err.Error()
		}
		writeError(c, status, code, msg)
		return
	}
	writeError(c, status, code, err.Error())
}
