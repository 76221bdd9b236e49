// Package rendercontext assembles the per-request data handed to the template
// stage.
package rendercontext

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/assetd/internal/inspector"
)

// DefaultMaxBodyBytes bounds how much of a request body is read into the context.
const DefaultMaxBodyBytes = 1 << 20

// Context is the template data for one request. It is built fresh per request
// and never shared, so the maps inside it belong to a single render.
type Context map[string]any

// Data returns the request/server map exposed to templates as .data.
func (c Context) Data() map[string]any {
	if d, ok := c["data"].(map[string]any); ok {
		return d
	}
	return nil
}

// ServerMeta is the static, process-wide part of every context.
type ServerMeta struct {
	// Debug is the debug listener descriptor, nil when the listener is disabled.
	Debug *inspector.Endpoint
	// Port is the HTTP listening port.
	Port int
}

// New builds a context from already-extracted request parts. Request-derived
// values pass through untouched, nil included.
func New(body, query, params any, meta ServerMeta) Context {
	var ws any
	if meta.Debug != nil {
		ws = meta.Debug.Parts()
	}

	return Context{
		"data": map[string]any{
			"body":   body,
			"query":  query,
			"params": params,
			"ws":     ws,
			"port":   meta.Port,
		},
	}
}

// Builder extracts request parts and combines them with the server metadata.
type Builder struct {
	meta         ServerMeta
	maxBodyBytes int64
}

// NewBuilder creates a Builder. maxBodyBytes <= 0 selects DefaultMaxBodyBytes.
func NewBuilder(meta ServerMeta, maxBodyBytes int64) *Builder {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Builder{meta: meta, maxBodyBytes: maxBodyBytes}
}

// Meta returns the server metadata the builder embeds.
func (b *Builder) Meta() ServerMeta {
	return b.meta
}

// Build returns the render context for r.
func (b *Builder) Build(r *http.Request) Context {
	return New(b.body(r), Query(r.URL.Query()), Params(r), b.meta)
}

// Query flattens url.Values: a single value becomes a string, repeated keys
// keep every value as []string.
func Query(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch len(v) {
		case 0:
			out[k] = ""
		case 1:
			out[k] = v[0]
		default:
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Params returns the router path parameters for r.
func Params(r *http.Request) map[string]string {
	out := make(map[string]string)
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return out
	}
	for i, k := range rctx.URLParams.Keys {
		if i < len(rctx.URLParams.Values) {
			out[k] = rctx.URLParams.Values[i]
		}
	}
	return out
}

// body decodes the request body by content type. JSON and urlencoded forms
// are decoded; anything else, including undecodable JSON, passes through as
// the raw string. An absent body yields nil.
func (b *Builder) body(r *http.Request) any {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, b.maxBodyBytes))
	if err != nil || len(raw) == 0 {
		return nil
	}
	// Leave the body readable for anything downstream.
	r.Body = io.NopCloser(bytes.NewReader(raw))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	case mediaType == "application/x-www-form-urlencoded":
		if values, err := url.ParseQuery(string(raw)); err == nil {
			return Query(values)
		}
	}
	return string(raw)
}
