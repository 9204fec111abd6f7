package http

import (
	"fmt"
	"strings"
)

type RouteHandler struct {
	pattern  string
	segments []PathSegment
	handle   HandlerFunction
	method   string
}

type HandlerFunction func(w *ResponseWriter, req *Request)

func NewRouteHandler(method string, routePattern string, h HandlerFunction) (RouteHandler, error) {
	segments, err := getPathSegments(routePattern)
	if err != nil {
		return RouteHandler{}, err
	}

	return RouteHandler{
		pattern:  routePattern,
		segments: segments,
		handle:   h,
		method:   strings.ToUpper(method),
	}, nil
}

// MustRouteHandler is NewRouteHandler for patterns known at compile time.
func MustRouteHandler(method string, routePattern string, h HandlerFunction) RouteHandler {
	r, err := NewRouteHandler(method, routePattern, h)
	if err != nil {
		panic(err)
	}
	return r
}

type PathSegment struct {
	Part  string
	IsVar bool
}

// splitPath drops one leading and one trailing slash, "/" yields a single
// empty part.
func splitPath(route string) []string {
	route = strings.TrimPrefix(route, "/")
	route = strings.TrimSuffix(route, "/")
	return strings.Split(route, "/")
}

func match(route string, segments []PathSegment) (bool, map[string]string) {
	if i := strings.IndexByte(route, '?'); i >= 0 {
		route = route[:i]
	}

	parts := splitPath(route)
	if len(parts) != len(segments) {
		return false, make(map[string]string)
	}

	routeParams := make(map[string]string)
	for i, expected := range segments {
		got := parts[i]

		if expected.IsVar {
			routeParams[expected.Part] = got
			continue
		}

		if strings.ToLower(got) != expected.Part {
			return false, make(map[string]string)
		}
	}

	return true, routeParams
}

func getPathSegments(route string) ([]PathSegment, error) {
	parts := splitPath(route)

	segments := make([]PathSegment, 0, len(parts))
	for _, part := range parts {
		opens, closes := strings.HasPrefix(part, "{"), strings.HasSuffix(part, "}")

		switch {
		case opens && closes:
			name := part[1 : len(part)-1]
			if name == "" {
				return nil, fmt.Errorf("empty variable name in route %q", route)
			}
			segments = append(segments, PathSegment{Part: name, IsVar: true})
		case opens || closes:
			return nil, fmt.Errorf("unbalanced braces in route %q segment %q", route, part)
		default:
			segments = append(segments, PathSegment{Part: strings.ToLower(part)}) // only lowercase non-vars
		}
	}

	return segments, nil
}
