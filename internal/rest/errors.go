// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-gateway.
//
// go-webauthn-gateway is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jeremyhahn/go-webauthn-gateway/pkg/credential"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/gateway"
)

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error: message,
		Code:  statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// mapServiceError maps orchestrator errors to HTTP status codes. The
// "nothing pending" case is endpoint-specific and handled by the callers.
func mapServiceError(err error) int {
	switch {
	case errors.Is(err, gateway.ErrVerificationFailed),
		errors.Is(err, gateway.ErrNoCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrDuplicateCredential):
		// Kept as a client error rather than 409 to match the browser
		// script's expectations.
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrInvalidRedirect),
		errors.Is(err, gateway.ErrInvalidCredentialID):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrForbiddenRedirect):
		return http.StatusForbidden
	case errors.Is(err, credential.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError maps the error to a status code and writes the error
// response. Internal errors never leak details to the client.
func handleServiceError(w http.ResponseWriter, err error) {
	statusCode := mapServiceError(err)
	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeError(w, message, statusCode)
}
