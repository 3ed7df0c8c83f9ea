package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/wishroom/internal/auth"
	"github.com/wolfeidau/wishroom/internal/delivery"
	"github.com/wolfeidau/wishroom/internal/service"
)

const maxBodyBytes = 64 << 10

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// badRequest is a malformed request detected before reaching the engine.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindQuotaExceeded:
		return http.StatusUnprocessableEntity
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	case service.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := describeError(err)

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, errorBody{Error: detail})
}

func describeError(err error) (int, errorDetail) {
	var (
		br *badRequest
		se *service.Error
	)

	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, errorDetail{Kind: service.KindInvalidInput.String(), Code: "INVALID_INPUT", Message: br.msg}
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, errorDetail{Kind: "unauthenticated", Code: "UNAUTHENTICATED", Message: err.Error()}
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, errorDetail{Kind: service.KindForbidden.String(), Code: "PERMISSION_DENIED", Message: err.Error()}
	case errors.Is(err, delivery.ErrRunInProgress):
		return http.StatusConflict, errorDetail{Kind: service.KindConflict.String(), Code: "RUN_IN_PROGRESS", Message: err.Error()}
	case errors.As(err, &se):
		msg := se.Error()
		if se.Kind == service.KindInternal {
			msg = "internal error"
		}
		return statusForKind(se.Kind), errorDetail{Kind: se.Kind.String(), Code: se.Code, Message: msg}
	default:
		return http.StatusInternalServerError, errorDetail{Kind: service.KindInternal.String(), Code: "INTERNAL", Message: "internal error"}
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequestf("invalid request body: %v", err)
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, badRequestf("invalid %s", name)
	}
	return id, nil
}

func pathExternalID(r *http.Request) (int64, error) {
	return parseExternalID(r.PathValue("externalID"))
}

func queryExternalID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("external_id")
	if raw == "" {
		return 0, badRequestf("external_id query parameter is required")
	}
	return parseExternalID(raw)
}

func parseExternalID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequestf("invalid external id %q", raw)
	}
	return id, nil
}
