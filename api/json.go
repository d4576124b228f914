package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/b0bbywan/odio-bluetooth/backend/bluetooth"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

func JSONHandler(h func(http.ResponseWriter, *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// withBody decodes and validates the JSON body, then calls next.
func withBody[T any](
	validate func(*T) error,
	next func(w http.ResponseWriter, r *http.Request, req *T),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req T
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		if validate != nil {
			if err := validate(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		next(w, r, &req)
	}
}

// statusFor maps backend errors to HTTP status codes.
func statusFor(err error) int {
	var (
		notFound   *bluetooth.DeviceNotFoundError
		noRequest  *bluetooth.RequestNotFoundError
		validation *bluetooth.ValidationError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noRequest):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, bluetooth.ErrPromptUnavailable):
		return http.StatusConflict
	case errors.Is(err, bluetooth.ErrNoAdapter),
		errors.Is(err, bluetooth.ErrNotReady),
		errors.Is(err, bluetooth.ErrLoopStopped),
		bluetooth.IsRemoteUnavailable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Warn("[api] request failed: %v", err)
	}
	http.Error(w, err.Error(), status)
}

// accepted answers 202 for async commands, or the mapped error.
func accepted(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
