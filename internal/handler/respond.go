package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/smm-storefront/internal/model"
	"github.com/mmeshcher/smm-storefront/internal/provider"
	"github.com/mmeshcher/smm-storefront/internal/validation"
)

type errorResponse struct {
	Error string `json:"error"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{model.ErrInsufficientFunds, http.StatusPaymentRequired},
	{model.ErrUserBanned, http.StatusForbidden},
	{model.ErrQuantityOutOfRange, http.StatusUnprocessableEntity},
	{model.ErrCouponInvalid, http.StatusUnprocessableEntity},
	{model.ErrInvalidAdjustment, http.StatusUnprocessableEntity},
	{model.ErrInvalidAmount, http.StatusUnprocessableEntity},
	{model.ErrDripfeedUnsupported, http.StatusUnprocessableEntity},
	{model.ErrInvalidStatus, http.StatusUnprocessableEntity},
	{model.ErrInvalidLink, http.StatusUnprocessableEntity},
	{model.ErrServiceNotFound, http.StatusNotFound},
	{model.ErrOrderNotFound, http.StatusNotFound},
	{model.ErrUserNotFound, http.StatusNotFound},
	{model.ErrProviderNotFound, http.StatusNotFound},
	{model.ErrDuplicateRefund, http.StatusConflict},
	{model.ErrUserExists, http.StatusConflict},
	{model.ErrCouponExists, http.StatusConflict},
	{model.ErrRefillNotAllowed, http.StatusConflict},
	{provider.ErrNoProvider, http.StatusServiceUnavailable},
	{provider.ErrTransport, http.StatusBadGateway},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError переводит доменную ошибку в HTTP-ответ. Неизвестные ошибки логируются как 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var rejected *provider.RejectedError
	if errors.As(err, &rejected) {
		writeMessage(w, http.StatusUnprocessableEntity, rejected.Message)
		return
	}

	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				h.logger.Warn(op+" failed", zap.Error(err), zap.String("uri", r.RequestURI))
			}
			writeMessage(w, m.status, err.Error())
			return
		}
	}

	h.logger.Error(op+" error", zap.Error(err), zap.String("uri", r.RequestURI))
	writeMessage(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// decode читает JSON-тело и проверяет его тегами validate.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, validation.Describe(err))
		return false
	}
	return true
}
