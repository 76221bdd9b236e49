// Package inspector owns the process-wide debug listener: the endpoint
// descriptor handed to templates, the listener that serves it and the
// change-notification hub streamed over its WebSocket path.
package inspector

import (
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Endpoint describes the debug listener. It is built once at startup and
// never mutated afterwards; copies are safe to share between requests.
type Endpoint struct {
	URL       string
	Scheme    string
	Host      string // host:port
	Hostname  string
	Port      int
	Path      string
	SessionID string

	// URL parts split the way a POSIX path parser splits the full URL.
	Dir  string
	Base string
	Ext  string
	Name string
}

// NewEndpoint builds a descriptor for ws://host:port/<session> with a fresh
// random session id.
func NewEndpoint(host string, port int) Endpoint {
	return newEndpoint(host, port, uuid.NewString())
}

func newEndpoint(host string, port int, session string) Endpoint {
	hostport := net.JoinHostPort(host, strconv.Itoa(port))
	u := fmt.Sprintf("ws://%s/%s", hostport, session)

	e := Endpoint{
		URL:       u,
		Scheme:    "ws",
		Host:      hostport,
		Hostname:  host,
		Port:      port,
		Path:      "/" + session,
		SessionID: session,
	}

	idx := strings.LastIndex(u, "/")
	e.Dir = u[:idx]
	e.Base = u[idx+1:]
	e.Ext = path.Ext(e.Base)
	e.Name = strings.TrimSuffix(e.Base, e.Ext)

	return e
}

// Addr is the listen address.
func (e Endpoint) Addr() string {
	return e.Host
}

// Parts returns the descriptor as a template-friendly map.
func (e Endpoint) Parts() map[string]any {
	return map[string]any{
		"url":      e.URL,
		"root":     "", // the URL is never parsed as an absolute path
		"scheme":   e.Scheme,
		"host":     e.Host,
		"hostname": e.Hostname,
		"port":     e.Port,
		"path":     e.Path,
		"dir":      e.Dir,
		"base":     e.Base,
		"ext":      e.Ext,
		"name":     e.Name,
	}
}
