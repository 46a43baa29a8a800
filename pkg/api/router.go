// Package api exposes the REST surface: event intake, rule and subject
// management, alert lifecycle, reports and engine status.
package api

import (
	"net/http"
	"strings"
)

// HandlerFunc is a route handler with extracted path parameters.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string)

type Route struct {
	Method  string
	Path    string
	Handler HandlerFunc
}

// Router matches requests against patterns like /rules/{id}/enable.
type Router struct {
	routes    []Route
	extractor *pathParamExtractor
}

func NewRouter() *Router {
	return &Router{extractor: newPathParamExtractor()}
}

func (r *Router) Handle(method, path string, h HandlerFunc) {
	r.routes = append(r.routes, Route{Method: method, Path: path, Handler: h})
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	matchedPath := false
	for _, route := range r.routes {
		params, ok := r.extractor.match(route.Path, req.URL.Path)
		if !ok {
			continue
		}
		matchedPath = true
		if route.Method != req.Method {
			continue
		}
		route.Handler(w, req, params)
		return
	}

	if matchedPath {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method not allowed: "+req.Method+" "+req.URL.Path)
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND",
		"route not found: "+req.Method+" "+req.URL.Path)
}

type pathParamExtractor struct{}

func newPathParamExtractor() *pathParamExtractor {
	return &pathParamExtractor{}
}

func (p *pathParamExtractor) match(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(strings.Trim(pattern, "/"), "/")
	pathParts := strings.Split(strings.Trim(path, "/"), "/")

	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i := 0; i < len(patternParts); i++ {
		pp := patternParts[i]
		pt := pathParts[i]

		if strings.HasPrefix(pp, "{") && strings.HasSuffix(pp, "}") {
			if pt == "" {
				return nil, false
			}
			params[pp[1:len(pp)-1]] = pt
		} else if pp != pt {
			return nil, false
		}
	}

	return params, true
}
