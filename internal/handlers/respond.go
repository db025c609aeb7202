package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/meomeo/backend/internal/logging"
	"github.com/meomeo/backend/internal/models"
)

var errorCodes = map[int]string{
	http.StatusBadRequest:          "BadRequest",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "NotFound",
	http.StatusMethodNotAllowed:    "MethodNotAllowed",
	http.StatusConflict:            "Conflict",
	http.StatusGone:                "Gone",
	http.StatusTooManyRequests:     "TooManyRequests",
	http.StatusInternalServerError: "InternalServerError",
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status)
	}
}

// respondError renders the error envelope every failing endpoint shares.
func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	code, ok := errorCodes[status]
	if !ok {
		code = http.StatusText(status)
	}
	respondJSON(ctx, w, status, models.ErrorResponse{
		Error:      code,
		Message:    message,
		StatusCode: status,
	})
}

func respondInternalError(ctx context.Context, w http.ResponseWriter) {
	respondError(ctx, w, http.StatusInternalServerError, "Internal server error")
}
