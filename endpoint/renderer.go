package endpoint

import "net/http"

// StringRenderer writes Body with an optional status code and content type.
//
// When ContentType is empty and no Content-Type header has been set,
// "text/plain; charset=utf-8" is used.
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

func (tr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if w.Header().Get("Content-Type") == "" {
		ct := tr.ContentType
		if ct == "" {
			ct = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", ct)
	}
	status := tr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if tr.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(tr.Body))
	return err
}

// NoContentRenderer writes a response with no body and a specific status code.
//
// If Status is 0, it defaults to http.StatusNoContent.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := ncr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}
