package control

import (
	"encoding/json"
	"net/http"
)

type snapshot struct {
	Machine         string `json:"machine"`
	State           string `json:"state"`
	Settled         string `json:"settled"`
	Substate        any    `json:"substate,omitempty"`
	Pending         int    `json:"pending"`
	PendingDeferred int    `json:"pending_deferred"`
}

type eventResponse struct {
	Event      string   `json:"event"`
	Mode       string   `json:"mode"`
	Result     any      `json:"result,omitempty"`
	DeferredID string   `json:"deferred_id,omitempty"`
	Snapshot   snapshot `json:"snapshot"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
