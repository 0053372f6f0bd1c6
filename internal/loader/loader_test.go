package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/endpoint/mocks"
	_ "github.com/stacklok/toolhive-gateway/internal/handlers"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func staticModule(name string, routes ...endpoint.Route) endpoint.Module {
	return endpoint.ModuleFunc{
		ModuleName: name,
		LoadFunc: func(context.Context) (*endpoint.Contribution, error) {
			c := &endpoint.Contribution{Routes: routes}
			for _, r := range routes {
				c.Descriptors = append(c.Descriptors, endpoint.Descriptor{Path: r.Path, Method: r.Method, Name: name})
			}
			return c, nil
		},
	}
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func TestLoaderDirectorySource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeManifest(t, dir, "10-weather.yaml", `name: weather
version: 1.0.0
routes:
  - path: /api/weather
    method: GET, POST
    kind: static
    name: Weather
    description: Current weather
    config:
      body: {"temp": 21}
  - path: /api/weather/health
    kind: static
    hidden: true
`)
	writeManifest(t, dir, "20-broken.yaml", `name: broken
routes:
  - path: no-slash
    kind: static
`)
	writeManifest(t, dir, "30-unknown-kind.json", `{"name":"unknown","routes":[{"path":"/api/u","kind":"lambda"}]}`)
	writeManifest(t, dir, ".hidden.yaml", `not: [valid`)
	writeManifest(t, dir, "README.md", `# ignored`)

	candidate, err := New(NewDirectorySource(dir)).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, candidate.Modules)
	require.Len(t, candidate.Routes, 3)
	assert.Equal(t, "GET", candidate.Routes[0].Method)
	assert.Equal(t, "POST", candidate.Routes[1].Method)
	assert.Equal(t, "/api/weather/health", candidate.Routes[2].Path)

	require.Len(t, candidate.Descriptors, 1)
	d := candidate.Descriptors[0]
	assert.Equal(t, "/api/weather", d.Path)
	assert.Equal(t, "GET, POST", d.Method)
	assert.Equal(t, "Weather", d.Name)
	assert.Equal(t, "weather", d.Source)

	require.Len(t, candidate.Failures, 2)
	assert.Equal(t, "20-broken.yaml", candidate.Failures[0].Module)
	assert.Contains(t, candidate.Failures[0].Error(), "manifest schema validation failed")
	assert.Equal(t, "unknown", candidate.Failures[1].Module)
	assert.Contains(t, candidate.Failures[1].Message, `unknown handler kind "lambda"`)

	rr := httptest.NewRecorder()
	candidate.Routes[0].Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/weather", nil))
	assert.JSONEq(t, `{"temp":21}`, rr.Body.String())
}

func TestDirectorySourceHighestVersionWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeManifest(t, dir, "a.yaml", "name: echo\nversion: 1.2.0\nroutes:\n  - path: /api/echo\n    kind: static\n    config: {body: old}\n")
	writeManifest(t, dir, "b.yaml", "name: echo\nversion: 1.10.0\nroutes:\n  - path: /api/echo\n    kind: static\n    config: {body: new}\n")
	writeManifest(t, dir, "c.yaml", "name: echo\nversion: 1.3.0\nroutes:\n  - path: /api/echo\n    kind: static\n    config: {body: mid}\n")

	candidate, err := New(NewDirectorySource(dir)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, candidate.Routes, 1)
	assert.Empty(t, candidate.Failures)

	rr := httptest.NewRecorder()
	candidate.Routes[0].Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/echo", nil))
	assert.Equal(t, "new", rr.Body.String())
}

func TestDirectorySourceSkipList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeManifest(t, dir, "keep.yaml", "name: keep\nroutes:\n  - path: /api/keep\n    kind: static\n")
	writeManifest(t, dir, "skip.yaml", "name: skip\nroutes:\n  - path: /api/skip\n    kind: static\n")

	modules, err := NewDirectorySource(dir, "skip.yaml").Modules(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "keep", modules[0].Name())
}

func TestLoaderMissingDirectoryFailsPass(t *testing.T) {
	t.Parallel()

	_, err := New(NewDirectorySource(filepath.Join(t.TempDir(), "missing"))).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list modules")
}

func TestLoaderIsolatesModuleFailures(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	failing := mocks.NewMockModule(ctrl)
	failing.EXPECT().Name().Return("failing").AnyTimes()
	failing.EXPECT().Load(gomock.Any()).Return(nil, errors.New("boom"))

	panicking := mocks.NewMockModule(ctrl)
	panicking.EXPECT().Name().Return("panicking").AnyTimes()
	panicking.EXPECT().Load(gomock.Any()).DoAndReturn(func(context.Context) (*endpoint.Contribution, error) {
		panic("nil map write")
	})

	source := NewStaticSource("test",
		failing,
		panicking,
		staticModule("good", endpoint.Route{Method: "GET", Path: "/api/good", Handler: okHandler("good")}),
	)

	candidate, err := New(source).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, candidate.Routes, 1)
	assert.Equal(t, "/api/good", candidate.Routes[0].Path)

	require.Len(t, candidate.Failures, 2)
	assert.Equal(t, "failing", candidate.Failures[0].Module)
	assert.Equal(t, "boom", errors.Unwrap(candidate.Failures[0]).Error())
	assert.Equal(t, "panicking", candidate.Failures[1].Module)
	assert.Contains(t, candidate.Failures[1].Message, "panic during load")
}

func TestLoaderFirstRegisteredWins(t *testing.T) {
	t.Parallel()

	source := MultiSource{
		NewStaticSource("one",
			staticModule("first", endpoint.Route{Method: "get", Path: "/api/x", Handler: okHandler("first")}),
		),
		NewStaticSource("two",
			staticModule("second", endpoint.Route{Method: "GET", Path: "/api/x", Handler: okHandler("second")}),
			staticModule("third",
				endpoint.Route{Method: "POST", Path: "/api/x", Handler: okHandler("third")},
				endpoint.Route{Method: "ALL", Path: "/api/x", Handler: okHandler("all")},
			),
		),
	}

	candidate, err := New(source).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, candidate.Routes, 2)
	assert.Equal(t, "GET", candidate.Routes[0].Method)
	assert.Equal(t, "POST", candidate.Routes[1].Method)

	rr := httptest.NewRecorder()
	candidate.Routes[0].Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, "first", rr.Body.String())

	require.Len(t, candidate.Failures, 2)
	assert.Equal(t, "second", candidate.Failures[0].Module)
	assert.Contains(t, candidate.Failures[0].Message, "already registered by module first")
	assert.Equal(t, "third", candidate.Failures[1].Module)

	// Descriptors dedupe on (path, method) with the same first-wins rule.
	require.Len(t, candidate.Descriptors, 3)
	assert.Equal(t, "first", candidate.Descriptors[0].Name)
	assert.Equal(t, "third", candidate.Descriptors[1].Name)
	assert.Equal(t, "POST", candidate.Descriptors[1].Method)
	assert.Equal(t, "ALL", candidate.Descriptors[2].Method)
	assert.Equal(t, "static:one,static:two", source.Name())
}

func TestLoaderRejectsInvalidRoutes(t *testing.T) {
	t.Parallel()

	source := NewStaticSource("test", staticModule("bad",
		endpoint.Route{Method: "GET", Path: "relative", Handler: okHandler("x")},
		endpoint.Route{Method: "GET", Path: "/nil"},
		endpoint.Route{Method: "GET,POST", Path: "/multi", Handler: okHandler("x")},
	))

	candidate, err := New(source).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidate.Routes)
	assert.Len(t, candidate.Failures, 3)
}

func TestLoaderIsolatesPatternPaths(t *testing.T) {
	t.Parallel()

	source := NewStaticSource("test",
		staticModule("good", endpoint.Route{Method: "GET", Path: "/api/good", Handler: okHandler("good")}),
		staticModule("bad", endpoint.Route{Method: "GET", Path: "/api/bad/{id", Handler: okHandler("bad")}),
		staticModule("users", endpoint.Route{Method: "GET", Path: "/api/users/{id}", Handler: okHandler("users")}),
		staticModule("files", endpoint.Route{Method: "GET", Path: "/files/*", Handler: okHandler("files")}),
	)

	candidate, err := New(source).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, candidate.Routes, 1)
	assert.Equal(t, "/api/good", candidate.Routes[0].Path)
	require.Len(t, candidate.Descriptors, 1)
	assert.Equal(t, "/api/good", candidate.Descriptors[0].Path)

	require.Len(t, candidate.Failures, 3)
	for i, module := range []string{"bad", "users", "files"} {
		assert.Equal(t, module, candidate.Failures[i].Module)
		assert.Contains(t, candidate.Failures[i].Message, "must be literal")
	}
}

func TestParseManifest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name: "valid_yaml",
			data: "name: ok\nroutes:\n  - path: /api/ok\n    kind: static\n",
		},
		{
			name: "valid_json",
			data: `{"name":"ok","version":"2.0.0","routes":[]}`,
		},
		{
			name:    "missing_routes",
			data:    "name: ok\n",
			wantErr: "manifest schema validation failed",
		},
		{
			name:    "unknown_field",
			data:    "name: ok\nroutes: []\nextra: 1\n",
			wantErr: "manifest schema validation failed",
		},
		{
			name:    "bad_name",
			data:    "name: Bad Name\nroutes: []\n",
			wantErr: "manifest schema validation failed",
		},
		{
			name:    "pattern_path",
			data:    "name: ok\nroutes:\n  - path: /api/users/{id}\n    kind: static\n",
			wantErr: "manifest schema validation failed",
		},
		{
			name:    "wildcard_path",
			data:    "name: ok\nroutes:\n  - path: /files/*\n    kind: static\n",
			wantErr: "manifest schema validation failed",
		},
		{
			name:    "not_yaml",
			data:    "name: [",
			wantErr: "failed to parse manifest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := ParseManifest([]byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", m.Name)
		})
	}
}

func TestIsManifestFile(t *testing.T) {
	t.Parallel()

	assert.True(t, IsManifestFile("a.yaml"))
	assert.True(t, IsManifestFile("/x/b.YML"))
	assert.True(t, IsManifestFile("c.json"))
	assert.False(t, IsManifestFile(".d.yaml"))
	assert.False(t, IsManifestFile("e.yaml.swp"))
	assert.False(t, IsManifestFile("f.md"))
}
