package asset

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Static serves files from root. Paths that do not exist get a 404.
func Static(root string) http.Handler {
	return http.FileServer(http.Dir(root))
}

// Mount registers every route on r for GET and HEAD, with static serving
// from contentRoot as the fall-through target and the router's catch-all.
// Other methods on an asset path go to static serving too, never a 405.
func Mount(r chi.Router, routes []Route, cfg HandlerConfig, contentRoot string) {
	static := Static(contentRoot)
	for _, route := range routes {
		hc := cfg
		hc.Route = route
		hc.Next = static
		h := NewHandler(hc)
		r.Get(route.Pattern, h.ServeHTTP)
		r.Head(route.Pattern, h.ServeHTTP)
	}
	r.NotFound(static.ServeHTTP)
	r.MethodNotAllowed(static.ServeHTTP)
}
