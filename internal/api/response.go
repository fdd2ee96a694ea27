package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "ambient-pro/internal/common/errors"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type apiError struct {
	Code      string            `json:"code"`
	Status    int               `json:"status"`
	Details   string            `json:"details,omitempty"`
	Retryable bool              `json:"retryable"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type apiResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Data    any       `json:"data"`
	Error   *apiError `json:"error,omitempty"`
}

func writeRawJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeRawJSON(w, status, apiResponse{Status: "ok", Data: data})
}

// writeError renders err with the status its code maps to.
func writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.Normalize(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	body := &apiError{
		Code:      string(stdErr.Code),
		Status:    status,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
	}
	if stdErr.Code == apperrors.ErrCodeValidationFailed && len(stdErr.Metadata) > 0 {
		body.Fields = make(map[string]string, len(stdErr.Metadata))
		for k, v := range stdErr.Metadata {
			if s, ok := v.(string); ok {
				body.Fields[k] = s
			}
		}
	}
	// Driver and internal error text stays in the logs.
	if stdErr.Code == apperrors.ErrCodeInternal || stdErr.Code == apperrors.ErrCodePersistenceFailed {
		body.Details = ""
	}

	writeRawJSON(w, status, apiResponse{
		Status:  "error",
		Message: stdErr.Message,
		Error:   body,
	})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewValidationError(map[string]string{"body": fmt.Sprintf("exceeds %d bytes", tooLarge.Limit)})
		}
		return apperrors.NewValidationError(map[string]string{"body": "invalid JSON: " + err.Error()})
	}
	return nil
}
