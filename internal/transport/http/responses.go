package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"brokergate/internal/lifecycle"
	dErrors "brokergate/pkg/domain-errors"
)

// recordResponse is the snapshot returned for reads and accepted edits.
type recordResponse struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	Status    string           `json:"status"`
	Fields    lifecycle.Fields `json:"fields"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func toRecordResponse(rec *lifecycle.Record) recordResponse {
	return recordResponse{
		ID:        rec.ID.String(),
		Kind:      rec.Kind,
		Status:    string(rec.Status),
		Fields:    rec.Fields,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// rejectionResponse carries the full structured rejection so clients can
// build a precise message without knowing the blueprint.
type rejectionResponse struct {
	Error  string   `json:"error"`
	State  string   `json:"state,omitempty"`
	Fields []string `json:"fields,omitempty"`
	From   string   `json:"from,omitempty"`
	To     string   `json:"to,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes translation of engine outcomes to HTTP responses:
// rule rejections keep their structure, coded errors map through
// domain-errors, everything else is an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	if rej, ok := lifecycle.AsRejection(err); ok {
		status := http.StatusUnprocessableEntity
		if rej.Kind == lifecycle.RejectedUnauthorized {
			status = http.StatusForbidden
		}
		writeJSON(w, status, rejectionResponse{
			Error:  string(rej.Kind),
			State:  string(rej.State),
			Fields: rej.Fields,
			From:   string(rej.From),
			To:     string(rej.To),
		})
		return
	}

	var de *dErrors.Error
	if errors.As(err, &de) {
		writeJSON(w, dErrors.ToHTTPStatus(de.Code), map[string]any{
			"error":             string(de.Code),
			"error_description": de.Message,
			"retryable":         dErrors.Retryable(de),
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": string(dErrors.CodeInternal),
	})
}
