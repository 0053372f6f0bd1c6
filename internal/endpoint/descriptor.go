// Package endpoint defines the contract between the gateway core and the
// discoverable modules that contribute routes and catalog metadata.
package endpoint

import (
	"encoding/json"
	"net/http"
	"slices"
	"sort"
	"strings"
)

// MethodAll matches every request method
const MethodAll = "ALL"

// Parameter describes one input accepted by an endpoint
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Example     string `json:"example,omitempty" yaml:"example,omitempty"`
}

// Descriptor is the metadata describing one routable endpoint.
// Method may hold a single verb, a comma separated list such as "GET, POST", or ALL.
type Descriptor struct {
	Path           string          `json:"path"`
	Method         string          `json:"method"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category,omitempty"`
	Parameters     []Parameter     `json:"parameters,omitempty"`
	Examples       json.RawMessage `json:"examples,omitempty"`
	ResponseBinary bool            `json:"responseBinary,omitempty"`
	Source         string          `json:"source,omitempty"`
}

// Key is the identity of a catalog entry
type Key struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

// String renders the key as "METHOD path"
func (k Key) String() string {
	return k.Method + " " + k.Path
}

// Methods expands the descriptor method field into upper-cased verbs.
// An empty field means GET.
func (d Descriptor) Methods() []string {
	return SplitMethods(d.Method)
}

// Keys returns one identity key per expanded method
func (d Descriptor) Keys() []Key {
	methods := d.Methods()
	keys := make([]Key, 0, len(methods))
	for _, m := range methods {
		keys = append(keys, Key{Path: d.Path, Method: m})
	}
	return keys
}

// SplitMethods splits a comma separated method list, trimming and upper-casing
// every entry and dropping duplicates. An empty list yields GET.
func SplitMethods(raw string) []string {
	var methods []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		m := strings.ToUpper(strings.TrimSpace(part))
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		methods = append(methods, m)
	}
	if len(methods) == 0 {
		return []string{"GET"}
	}
	return methods
}

// MethodMatches reports whether a descriptor method field admits the request method
func MethodMatches(field, requestMethod string) bool {
	requestMethod = strings.ToUpper(strings.TrimSpace(requestMethod))
	for _, m := range SplitMethods(field) {
		if m == MethodAll || m == requestMethod {
			return true
		}
	}
	return false
}

var supportedMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodOptions, http.MethodConnect, http.MethodTrace,
	MethodAll,
}

// SupportedMethod reports whether m, after trimming and upper-casing, is a
// standard HTTP verb or ALL
func SupportedMethod(m string) bool {
	return slices.Contains(supportedMethods, strings.ToUpper(strings.TrimSpace(m)))
}

// LiteralPath reports whether p is an absolute path with no router pattern
// syntax. Access rules match paths literally, so a pattern segment would let a
// request reach a route its stored record never covers.
func LiteralPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.ContainsAny(p, "{}*")
}

// SortDescriptors orders descriptors by path then method
func SortDescriptors(ds []Descriptor) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Path != ds[j].Path {
			return ds[i].Path < ds[j].Path
		}
		return ds[i].Method < ds[j].Method
	})
}
