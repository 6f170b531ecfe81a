package presenter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/service"
	"github.com/pagopa/interop-platform-state/internal/validation"
)

type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"`

	// Steps is set when a client assertion was rejected.
	Steps []validation.StepResult `json:"steps,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

func Error(w http.ResponseWriter, r *http.Request, msg string, status int) {
	JSON(w, r, ErrorResponse{
		Error:         msg,
		CorrelationID: core.CorrelationID(r.Context()),
	}, status)
}

// Err writes err with the status of a wrapped service.HTTPError, 500 otherwise.
// Rejected assertions carry their step trail.
func Err(w http.ResponseWriter, r *http.Request, err error, short string) {
	status := http.StatusInternalServerError
	var httpError *service.HTTPError
	if errors.As(err, &httpError) {
		status = httpError.StatusCode
	}
	resp := ErrorResponse{
		Error:         short + ": " + err.Error(),
		CorrelationID: core.CorrelationID(r.Context()),
	}
	if trail, ok := service.IsRejected(err); ok {
		resp.Steps = trail.Steps
	}
	JSON(w, r, resp, status)
}
