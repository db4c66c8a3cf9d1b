// Package server exposes the runner over HTTP.
package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/runner"
)

// Handler handles command and script invocations.
type Handler struct {
	runner *runner.Runner
}

// NewHandler creates a new handler.
func NewHandler(r *runner.Runner) *Handler {
	return &Handler{runner: r}
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/integrations", h.ListIntegrations).Methods("GET")
	r.HandleFunc("/instances", h.ListInstances).Methods("GET")
	r.HandleFunc("/instances/{instance}/commands/{command}", h.RunCommand).Methods("POST")
	r.HandleFunc("/scripts/{script}", h.RunScript).Methods("POST")
}

// CommandResponse is the body returned for a successful invocation.
type CommandResponse struct {
	Entry        host.Entry                 `json:"entry"`
	Indicators   []commandresults.Indicator `json:"indicators,omitempty"`
	Incidents    []commandresults.Incident  `json:"incidents,omitempty"`
	EventsPushed int                        `json:"events_pushed,omitempty"`
}

// ScriptRequest is the body of a script invocation.
type ScriptRequest struct {
	Args     host.Args      `json:"args"`
	Incident *host.Incident `json:"incident"`
}

// ListIntegrations returns the registered integrations and scripts.
func (h *Handler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	reg := h.runner.Registry()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"integrations": reg.List(),
		"scripts":      reg.ListScripts(),
	})
}

// ListInstances returns the configured instances with their commands.
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"instances": h.runner.Describe(),
	})
}

// RunCommand runs a command on an instance. The body is the JSON object
// of command arguments and may be empty.
func (h *Handler) RunCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	command := vars["command"]

	args := host.Args{}
	if err := decodeBody(r, &args); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.runner.Run(r.Context(), vars["instance"], command, args)
	if err != nil {
		h.respondFailure(w, command, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ToResponse(res))
}

// RunScript runs a script against the incident in the body.
func (h *Handler) RunScript(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["script"]

	var req ScriptRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.runner.RunScript(r.Context(), name, req.Args, req.Incident)
	if err != nil {
		h.respondFailure(w, name, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ToResponse(res))
}

// ToResponse converts results into the response body.
func ToResponse(res *commandresults.CommandResults) CommandResponse {
	if res == nil {
		return CommandResponse{Entry: host.Entry{Type: host.EntryNote}}
	}
	return CommandResponse{
		Entry:        res.ToEntry(),
		Indicators:   res.Indicators,
		Incidents:    res.Incidents,
		EventsPushed: res.EventsPushed,
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

// Helper methods

// respondFailure reports a failed invocation. Vendor errors map to 502
// with the vendor status in the body.
func (h *Handler) respondFailure(w http.ResponseWriter, command string, err error) {
	status := errors.GetHTTPStatus(err)
	body := map[string]interface{}{"error": errors.CommandFailure(command, err)}
	if vendor := errors.StatusCode(err); vendor != 0 {
		status = http.StatusBadGateway
		body["vendor_status"] = vendor
	}
	h.respondJSON(w, status, body)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
