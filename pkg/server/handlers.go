package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/otherjamesbrown/vidq/pkg/assistant"
	vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
	"github.com/otherjamesbrown/vidq/pkg/logging"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
	Action  string            `json:"action,omitempty"`
	Retry   bool              `json:"retryable,omitempty"`
	Request string            `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	answer, err := s.asker.Ask(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	res, err := s.asker.Resolve(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decode reads and validates an AskRequest, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request) (assistant.AskRequest, bool) {
	var req assistant.AskRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return req, false
	}
	if err := s.validator.Validate(req); err != nil {
		var fe *FieldErrors
		if errors.As(err, &fe) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Code: "invalid_request", Fields: fe.Fields})
			return req, false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return req, false
	}
	return req, true
}

// fail maps an assistant error onto a status code and error body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, vqerrors.ErrValidation) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	qe := vqerrors.ClassifyError(err, "")
	status := vqerrors.HTTPStatus(qe.Code)
	s.logger.WithContext(r.Context()).Warn("request failed",
		logging.F("code", string(qe.Code)),
		logging.F("stage", qe.Stage),
		logging.F("status", status),
		logging.Err(err),
	)
	writeJSON(w, status, errorBody{
		Error:   qe.Message,
		Code:    string(qe.Code),
		Action:  vqerrors.GetSuggestedAction(qe.Code),
		Retry:   vqerrors.IsRetryable(qe.Code),
		Request: logging.RequestID(r.Context()),
	})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
