package rest

import (
	"net/url"
	"strings"
)

// Route identifies an endpoint. Template names the rate-limit bucket; Path
// is what gets requested.
type Route struct {
	Method   string
	Template string
	path     string
}

// NewRoute fills the {placeholders} of template with params, in order.
// Params are path-escaped. Missing params leave the placeholder in place.
func NewRoute(method, template string, params ...string) Route {
	segments := strings.Split(template, "/")
	next := 0
	for i, seg := range segments {
		if !isPlaceholder(seg) || next >= len(params) {
			continue
		}
		segments[i] = url.PathEscape(params[next])
		next++
	}
	return Route{
		Method:   method,
		Template: template,
		path:     strings.Join(segments, "/"),
	}
}

// LiteralRoute builds a route from an already filled path. Numeric path
// segments are replaced with {id} to derive the bucket template, so
// requests for different resources of one endpoint share a bucket key.
func LiteralRoute(method, path string) Route {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return Route{
		Method:   method,
		Template: normalizePath(path),
		path:     path,
	}
}

// Path returns the request path.
func (r Route) Path() string {
	if r.path == "" {
		return r.Template
	}
	return r.path
}

// BucketKey returns the rate-limit bucket key.
func (r Route) BucketKey() string {
	return r.Method + " " + r.Template
}

func (r Route) String() string {
	return r.Method + " " + r.Path()
}

func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isNumeric(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isPlaceholder(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

func isNumeric(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
