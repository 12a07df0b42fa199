package httpx

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lukabudik/todofordevs-sub000/internal/service/auth"
)

// Stable error tokens returned by the token endpoint. CLIs match on these.
const (
	errorInvalidDeviceCode       = "invalid_device_code"
	errorExpiredDeviceCode       = "expired_device_code"
	errorAuthorizationPending    = "authorization_pending"
	errorUserNotFound            = "user_not_found"
	verifyMessageApproved        = "device authorized"
	verifyMessageInvalid         = "invalid code"
	verifyMessageExpired         = "code expired"
	verifyMessageUnauthenticated = "authentication required"
)

func (r *Router) handleDeviceStart(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var callerID string
	if info, ok := r.optionalAuth(req); ok {
		callerID = info.UserID
	}
	start, err := r.auth.StartDeviceAuthorization(req.Context(), callerID)
	if err != nil {
		r.recordDeviceEvent("start", "error")
		switch {
		case errors.Is(err, auth.ErrDeviceAuthDisabled):
			writeError(w, http.StatusServiceUnavailable, "device authorization unavailable")
		default:
			r.logger.Error("start device authorization failed", "error", err)
			writeError(w, http.StatusInternalServerError, "could not start device authorization")
		}
		return
	}
	outcome := "pending"
	if start.Approved {
		outcome = "preapproved"
	}
	r.recordDeviceEvent("start", outcome)
	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":               start.DeviceCode,
		"user_code":                 start.UserCode,
		"verification_uri":          start.VerificationURL,
		"verification_uri_complete": start.VerificationURLComplete,
		"expires_in":                int(start.ExpiresIn / time.Second),
		"interval":                  int(start.Interval / time.Second),
	})
}

func (r *Router) handleDeviceVerify(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeVerifyResult(w, http.StatusUnauthorized, false, verifyMessageUnauthenticated)
		return
	}
	var payload struct {
		UserCode string `json:"user_code"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeVerifyResult(w, http.StatusBadRequest, false, verifyMessageInvalid)
		return
	}
	_, err := r.auth.VerifyDeviceCode(req.Context(), payload.UserCode, info.UserID)
	switch {
	case err == nil:
		r.recordDeviceEvent("verify", "approved")
		writeVerifyResult(w, http.StatusOK, true, verifyMessageApproved)
	case errors.Is(err, auth.ErrDeviceCodeInvalid):
		r.recordDeviceEvent("verify", "invalid")
		writeVerifyResult(w, http.StatusBadRequest, false, verifyMessageInvalid)
	case errors.Is(err, auth.ErrDeviceCodeExpired):
		r.recordDeviceEvent("verify", "expired")
		writeVerifyResult(w, http.StatusBadRequest, false, verifyMessageExpired)
	case errors.Is(err, auth.ErrUnauthenticated):
		writeVerifyResult(w, http.StatusUnauthorized, false, verifyMessageUnauthenticated)
	default:
		r.recordDeviceEvent("verify", "error")
		r.logger.Error("verify device code failed", "error", err, "user_id", info.UserID)
		writeVerifyResult(w, http.StatusInternalServerError, false, "internal error")
	}
}

func (r *Router) handleDeviceToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	code := strings.TrimSpace(req.URL.Query().Get("code"))
	if code == "" {
		r.recordDeviceEvent("token", "invalid")
		writeError(w, http.StatusBadRequest, errorInvalidDeviceCode)
		return
	}
	result, err := r.auth.PollDeviceCode(req.Context(), code)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrDeviceCodePending):
		r.recordDeviceEvent("token", "pending")
		writeError(w, http.StatusAccepted, errorAuthorizationPending)
		return
	case errors.Is(err, auth.ErrDeviceCodeInvalid):
		r.recordDeviceEvent("token", "invalid")
		writeError(w, http.StatusBadRequest, errorInvalidDeviceCode)
		return
	case errors.Is(err, auth.ErrDeviceCodeExpired):
		r.recordDeviceEvent("token", "expired")
		writeError(w, http.StatusBadRequest, errorExpiredDeviceCode)
		return
	case errors.Is(err, auth.ErrUserNotFound):
		r.recordDeviceEvent("token", "user_not_found")
		writeError(w, http.StatusInternalServerError, errorUserNotFound)
		return
	default:
		r.recordDeviceEvent("token", "error")
		r.logger.Error("device token exchange failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	r.recordDeviceEvent("token", "issued")
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      result.Token,
		"token_type": "Bearer",
		"expires_in": int(result.ExpiresIn / time.Second),
		"user":       userPayload(result.User.ID, result.User.Email, result.User.Name),
	})
}

func writeVerifyResult(w http.ResponseWriter, status int, success bool, message string) {
	writeJSON(w, status, map[string]any{
		"success": success,
		"message": message,
	})
}
