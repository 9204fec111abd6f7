package http

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSegment(t *testing.T) {
	// arrange
	tests := []struct {
		route    string
		expected []PathSegment
	}{
		{route: "/", expected: []PathSegment{{Part: "", IsVar: false}}},
		{route: "/hello-world", expected: []PathSegment{{Part: "hello-world", IsVar: false}}},
		{route: "hello-world", expected: []PathSegment{{Part: "hello-world", IsVar: false}}},
		{route: "/HeLlO-wOrLd", expected: []PathSegment{{Part: "hello-world", IsVar: false}}},
		{route: "hello-world/", expected: []PathSegment{{Part: "hello-world", IsVar: false}}},
		{route: "/hello-world/nested", expected: []PathSegment{{Part: "hello-world", IsVar: false}, {Part: "nested", IsVar: false}}},
		{route: "/hello-world/nested/again", expected: []PathSegment{{Part: "hello-world", IsVar: false}, {Part: "nested", IsVar: false}, {Part: "again", IsVar: false}}},
		{route: "/{variable}", expected: []PathSegment{{Part: "variable", IsVar: true}}},
		{route: "/{VaRiAbLe}", expected: []PathSegment{{Part: "VaRiAbLe", IsVar: true}}},
		{route: "{variable}", expected: []PathSegment{{Part: "variable", IsVar: true}}},
		{route: "{variable}/", expected: []PathSegment{{Part: "variable", IsVar: true}}},
		{route: "/nested/{variable}", expected: []PathSegment{{Part: "nested", IsVar: false}, {Part: "variable", IsVar: true}}},
		{route: "/nested/{variable}/again", expected: []PathSegment{{Part: "nested", IsVar: false}, {Part: "variable", IsVar: true}, {Part: "again", IsVar: false}}},
	}

	for _, test := range tests {
		// act
		actual, err := getPathSegments(test.route)

		// assert
		require.NoError(t, err, test.route)
		require.Equal(t, test.expected, actual, test.route)
	}
}

func TestGetSegmentErrors(t *testing.T) {
	for _, route := range []string{"/{}", "/{open", "/close}", "/files/{name"} {
		_, err := getPathSegments(route)
		require.Error(t, err, route)
	}
}

func TestMustRouteHandlerPanics(t *testing.T) {
	require.Panics(t, func() {
		MustRouteHandler("GET", "/files/{", NotFoundHandlerFunc)
	})

	require.NotPanics(t, func() {
		h := MustRouteHandler("get", "/files/{name}", NotFoundHandlerFunc)
		require.Equal(t, "GET", h.method)
	})
}

func TestMatch(t *testing.T) {
	// arrange
	type Exp = struct {
		match bool
		vars  map[string]string
	}

	tests := []struct {
		name     string
		route    string
		target   []PathSegment
		expected Exp
	}{
		// simple matches
		{
			name:     "/ match",
			route:    "/",
			target:   []PathSegment{{Part: "", IsVar: false}},
			expected: Exp{match: true, vars: map[string]string{}},
		},
		{
			name:     "simple path match",
			route:    "/hello-world",
			target:   []PathSegment{{Part: "hello-world", IsVar: false}},
			expected: Exp{match: true, vars: map[string]string{}},
		},
		{
			name:     "missing part of segment",
			route:    "/hello",
			target:   []PathSegment{{Part: "hello-world", IsVar: false}},
			expected: Exp{match: false, vars: map[string]string{}},
		},
		{
			name:     "route matches prefix but not whole segment",
			route:    "/hello-world",
			target:   []PathSegment{{Part: "hello", IsVar: false}},
			expected: Exp{match: false, vars: map[string]string{}},
		},
		{
			name:     "case insensitive match",
			route:    "/HELLO-WORLD",
			target:   []PathSegment{{Part: "hello-world", IsVar: false}},
			expected: Exp{match: true, vars: map[string]string{}},
		},
		{
			name:     "query string ignored",
			route:    "/hello-world?x=1",
			target:   []PathSegment{{Part: "hello-world", IsVar: false}},
			expected: Exp{match: true, vars: map[string]string{}},
		},
		// nested routing
		{
			name:     "matches simple nested",
			route:    "/hello-world/nested",
			target:   []PathSegment{{Part: "hello-world", IsVar: false}, {Part: "nested", IsVar: false}},
			expected: Exp{match: true, vars: map[string]string{}},
		},
		{
			name:     "matches simple nested trailing suffix",
			route:    "/hello-world/nested/",
			target:   []PathSegment{{Part: "hello-world", IsVar: false}, {Part: "nested", IsVar: false}},
			expected: Exp{match: true, vars: map[string]string{}},
		},
		{
			name:     "does not match when route has additional parts",
			route:    "/hello-world/nested/",
			target:   []PathSegment{{Part: "hello-world", IsVar: false}},
			expected: Exp{match: false, vars: map[string]string{}},
		},
		{
			name:     "does not match when missing trailing segments",
			route:    "/hello-world",
			target:   []PathSegment{{Part: "hello-world", IsVar: false}, {Part: "nested", IsVar: false}},
			expected: Exp{match: false, vars: map[string]string{}},
		},
		// vars
		{
			name:     "simple variable",
			route:    "/my-variable-content",
			target:   []PathSegment{{Part: "variable1", IsVar: true}},
			expected: Exp{match: true, vars: map[string]string{"variable1": "my-variable-content"}},
		},
		{
			name:     "variable keeps its case",
			route:    "/echo/AbC",
			target:   []PathSegment{{Part: "echo", IsVar: false}, {Part: "command", IsVar: true}},
			expected: Exp{match: true, vars: map[string]string{"command": "AbC"}},
		},
		{
			name:     "simple variable with static prefix",
			route:    "/static/my-variable-content",
			target:   []PathSegment{{Part: "static", IsVar: false}, {Part: "variable1", IsVar: true}},
			expected: Exp{match: true, vars: map[string]string{"variable1": "my-variable-content"}},
		},
		{
			name:     "simple variable with static prefix and suffix",
			route:    "/static/my-variable-content/static",
			target:   []PathSegment{{Part: "static", IsVar: false}, {Part: "variable1", IsVar: true}, {Part: "static", IsVar: false}},
			expected: Exp{match: true, vars: map[string]string{"variable1": "my-variable-content"}},
		},
		{
			name:     "multi-vars",
			route:    "/my-variable-content-1/my-variable-content-2/",
			target:   []PathSegment{{Part: "variable1", IsVar: true}, {Part: "variable2", IsVar: true}},
			expected: Exp{match: true, vars: map[string]string{"variable1": "my-variable-content-1", "variable2": "my-variable-content-2"}},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// act
			gotmatch, gotvars := match(test.route, test.target)

			// assert
			require.Equal(t, test.expected.match, gotmatch)
			require.Equal(t, test.expected.vars, gotvars)
		})
	}
}
