package handlers

import (
	"errors"
	"net/http"

	"listaPlus/internal/logger"
	"listaPlus/internal/store"

	"go.uber.org/zap"
)

func handleBusinessError(w http.ResponseWriter, err error) bool {
	var businessErr *store.BusinessError
	if errors.As(err, &businessErr) {
		statusCode := mapBusinessErrorToHTTP(businessErr.Code)

		logger.Warn("HTTP: Бизнес-ошибка",
			zap.String("error_code", businessErr.Code),
			zap.Int("http_status", statusCode))

		responseWithJSON(w, statusCode,
			toPayload("error", businessErr.Code),
			toPayload("message", businessErr.Message),
			toPayload("details", businessErr.Details),
		)
		return true
	}
	return false
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "INVALID_TASK":
		return http.StatusBadRequest
	case "NO_ACTIVE_USER":
		return http.StatusConflict
	case "REMOTE_FAILED":
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}
