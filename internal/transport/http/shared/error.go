// Package shared centralizes domain error translation to HTTP responses.
package shared

import (
	"errors"
	"net/http"

	"painchain/internal/transport/http/json"
	dErrors "painchain/pkg/domain-errors"
)

// WriteError translates transport-agnostic domain errors into HTTP status
// codes and error responses. Anything that is not a domain error reads as an
// internal error without leaking its message.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": string(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		json.WriteJSON(w, StatusOf(domainErr.Code), response)
		return
	}

	json.WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": string(dErrors.CodeInternal),
	})
}

// StatusOf maps a domain error code to an HTTP status.
func StatusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation,
		dErrors.CodeInsufficientRegistrationInput, dErrors.CodeInvalidState,
		dErrors.CodeTenantClaimMissing:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeSlugConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized, dErrors.CodeInvalidCredentials,
		dErrors.CodeTokenInvalid, dErrors.CodeTokenExpired,
		dErrors.CodeSessionRevoked:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeAccountInactive:
		return http.StatusForbidden
	case dErrors.CodeInvitationRevoked, dErrors.CodeInvitationExpired,
		dErrors.CodeInvitationExhausted:
		return http.StatusGone
	case dErrors.CodeTokenExchangeFailed, dErrors.CodeUserinfoFetchFailed:
		return http.StatusBadGateway
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
