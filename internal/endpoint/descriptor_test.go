package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMethods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty_defaults_to_get", raw: "", want: []string{"GET"}},
		{name: "single", raw: "post", want: []string{"POST"}},
		{name: "comma_list", raw: "GET, post ,Delete", want: []string{"GET", "POST", "DELETE"}},
		{name: "duplicates_dropped", raw: "GET,get", want: []string{"GET"}},
		{name: "all", raw: "all", want: []string{"ALL"}},
		{name: "only_commas", raw: " , ", want: []string{"GET"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SplitMethods(tt.raw))
		})
	}
}

func TestMethodMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, MethodMatches("ALL", "DELETE"))
	assert.True(t, MethodMatches("get, post", "POST"))
	assert.True(t, MethodMatches("GET", "get"))
	assert.True(t, MethodMatches("", "GET"))
	assert.False(t, MethodMatches("GET, POST", "PUT"))
	assert.False(t, MethodMatches("", "POST"))
}

func TestDescriptorKeys(t *testing.T) {
	t.Parallel()

	d := Descriptor{Path: "/api/x", Method: "GET,POST"}
	assert.Equal(t, []Key{{Path: "/api/x", Method: "GET"}, {Path: "/api/x", Method: "POST"}}, d.Keys())
	assert.Equal(t, "GET /api/x", d.Keys()[0].String())
}

func TestSortDescriptors(t *testing.T) {
	t.Parallel()

	ds := []Descriptor{
		{Path: "/b", Method: "GET"},
		{Path: "/a", Method: "POST"},
		{Path: "/a", Method: "GET"},
	}
	SortDescriptors(ds)
	assert.Equal(t, "/a", ds[0].Path)
	assert.Equal(t, "GET", ds[0].Method)
	assert.Equal(t, "POST", ds[1].Method)
	assert.Equal(t, "/b", ds[2].Path)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		epName      string
		description string
		want        string
	}{
		{name: "social_media_by_path", path: "/api/tiktok", want: "social-media"},
		{name: "tools_by_name", path: "/api/x", epName: "QR Maker", want: "tools"},
		{name: "ai_before_image", path: "/api/image-gen", want: "ai"},
		{name: "search_by_description", path: "/api/w", description: "Lookup words", want: "search"},
		{name: "photo_is_image", path: "/api/photo", want: "image"},
		{name: "entertainment", path: "/api/anilist", want: "entertainment"},
		{name: "news", path: "/api/kompas", want: "news"},
		{name: "first_rule_wins", path: "/api/youtube/download", want: "social-media"},
		{name: "default_other", path: "/api/weather", want: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.path, tt.epName, tt.description))
		})
	}
}

func TestCategoryOrDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "custom", Descriptor{Path: "/api/tiktok", Category: "custom"}.CategoryOrDefault())
	assert.Equal(t, "social-media", Descriptor{Path: "/api/tiktok", Category: "  "}.CategoryOrDefault())
}

func TestRegisterKind(t *testing.T) {
	t.Parallel()

	factory := func(json.RawMessage) (http.Handler, error) {
		return http.NotFoundHandler(), nil
	}
	RegisterKind("test-kind-register", factory)

	got, ok := LookupKind("test-kind-register")
	require.True(t, ok)
	require.NotNil(t, got)
	assert.Contains(t, Kinds(), "test-kind-register")

	assert.Panics(t, func() { RegisterKind("test-kind-register", factory) })
	assert.Panics(t, func() { RegisterKind("test-kind-nil", nil) })

	_, ok = LookupKind("test-kind-missing")
	assert.False(t, ok)
}

func TestModuleFunc(t *testing.T) {
	t.Parallel()

	m := ModuleFunc{
		ModuleName: "fn",
		LoadFunc: func(context.Context) (*Contribution, error) {
			return &Contribution{Descriptors: []Descriptor{{Path: "/fn"}}}, nil
		},
	}
	assert.Equal(t, "fn", m.Name())
	c, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Descriptors, 1)
}

func TestSupportedMethod(t *testing.T) {
	t.Parallel()

	for _, m := range []string{"GET", " post ", "all", "OPTIONS"} {
		assert.True(t, SupportedMethod(m), m)
	}
	for _, m := range []string{"", "GET, POST", "FETCH"} {
		assert.False(t, SupportedMethod(m), m)
	}
}

func TestLiteralPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{path: "/api/users", want: true},
		{path: "/api/users/me", want: true},
		{path: "/", want: true},
		{path: "api/users", want: false},
		{path: "/api/users/{id}", want: false},
		{path: "/api/bad/{id", want: false},
		{path: "/files/*", want: false},
		{path: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LiteralPath(tt.path))
		})
	}
}
