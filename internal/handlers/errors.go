package handlers

import (
	"errors"
	"net/http"

	"roast_monitor/internal/export"
	"roast_monitor/internal/importer"
	"roast_monitor/internal/service"
	"roast_monitor/internal/session"
	"roast_monitor/internal/transport"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNotRoasting),
		errors.Is(err, session.ErrUndoExpired),
		errors.Is(err, service.ErrAlreadyConnected),
		errors.Is(err, service.ErrConnectPending),
		errors.Is(err, export.ErrNoData):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidLabel),
		errors.Is(err, transport.ErrUnknownKind),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, importer.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, importer.ErrMissingHeader),
		errors.Is(err, importer.ErrMissingColumn),
		errors.Is(err, importer.ErrEmptyImport),
		errors.Is(err, importer.ErrMalformed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transport.ErrUnavailable),
		errors.Is(err, transport.ErrHandshake),
		errors.Is(err, service.ErrConnectionLost):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// respondDomainError answers with the mapped status and the error text.
// Server faults keep their detail in the log only.
func (h *Handler) respondDomainError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = errInternal
	}
	h.logAndJSONError(c, code, msg, logKey, err, kv...)
}
