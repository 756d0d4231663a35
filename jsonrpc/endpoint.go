package jsonrpc

import (
	"io"
	"net/http"
	"strings"

	"github.com/mnehpets/rpcserve/endpoint"
)

// HTTPEndpoint serves a Dispatcher over HTTP POST. Every JSON-RPC outcome,
// including errors, is written with status 200.
type HTTPEndpoint struct {
	dispatcher *Dispatcher
	serializer Serializer
}

// NewHTTPEndpoint creates an HTTPEndpoint. A nil serializer selects
// JSONSerializer.
func NewHTTPEndpoint(d *Dispatcher, s Serializer) *HTTPEndpoint {
	if s == nil {
		s = JSONSerializer{}
	}
	return &HTTPEndpoint{dispatcher: d, serializer: s}
}

// MaxBodySize is the largest request body the HTTP endpoint dispatches.
// Larger bodies are answered with CodeInvalidRequest.
const MaxBodySize = 1 << 20

// NewHandler returns an http.Handler serving d, with processors run before
// the endpoint.
func NewHandler(d *Dispatcher, s Serializer, processors ...endpoint.Processor) http.Handler {
	chain := append(append([]endpoint.Processor(nil), processors...), endpoint.ProcessorFunc(limitBody))
	return endpoint.Handler(NewHTTPEndpoint(d, s).Endpoint, chain...)
}

// limitBody caps the body at one byte over MaxBodySize, so an oversized body
// is detected without being read in full.
func limitBody(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if r.Body != nil && r.Body != http.NoBody {
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.LimitReader(r.Body, MaxBodySize+1), r.Body}
	}
	return next(w, r)
}

// rpcParams captures the raw request body. Parsing is deferred to the
// Dispatcher because malformed JSON is a JSON-RPC error, not an HTTP one.
type rpcParams struct {
	ContentType string `header:"Content-Type"`
	Body        []byte `body:"" maxLength:"0"`
}

// Endpoint is the endpoint function that processes JSON-RPC requests.
func (e *HTTPEndpoint) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}

	if params.ContentType != "" && !strings.HasPrefix(params.ContentType, "application/json") {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
	}

	if len(params.Body) > MaxBodySize {
		return e.render(e.dispatcher.Reject(NewError(CodeInvalidRequest, map[string]any{
			"reason": "request body too large",
			"limit":  MaxBodySize,
		})))
	}

	resp := e.dispatcher.Dispatch(r.Context(), params.Body)
	return e.render(resp)
}

func (e *HTTPEndpoint) render(resp *Response) (endpoint.Renderer, error) {
	body, err := e.dispatcher.Encode(e.serializer, resp)
	if err != nil {
		return nil, err
	}
	return &responseRenderer{body: body, contentType: e.serializer.ContentType()}, nil
}

// responseRenderer writes an encoded JSON-RPC response.
type responseRenderer struct {
	body        []byte
	contentType string
}

func (rr *responseRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", rr.contentType)
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(rr.body)
	return err
}
