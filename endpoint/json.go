package endpoint

import (
	"encoding/json"
	"net/http"
)

// JSONRenderer serializes Value as JSON with Content-Type
// "application/json". Status defaults to 200.
//
// The encoder appends a trailing newline. Encoding errors are returned after
// the status line has been written, so callers should treat them as
// best-effort signals.
type JSONRenderer struct {
	Status int
	Value  any
	// EscapeHTML enables escaping of <, > and & in strings.
	EscapeHTML bool
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")

	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(jr.EscapeHTML)
	return enc.Encode(jr.Value)
}
