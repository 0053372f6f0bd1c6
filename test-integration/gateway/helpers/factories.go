package helpers

import (
	"encoding/json"
	"fmt"
	"time"

	"sigs.k8s.io/yaml"
)

// Manifest is a module manifest written into the watched directory
type Manifest struct {
	Name    string  `json:"name"`
	Version string  `json:"version,omitempty"`
	Routes  []Route `json:"routes"`
}

// Route is one manifest route
type Route struct {
	Path     string          `json:"path"`
	Method   string          `json:"method,omitempty"`
	Kind     string          `json:"kind"`
	Config   json.RawMessage `json:"config,omitempty"`
	Name     string          `json:"name,omitempty"`
	Category string          `json:"category,omitempty"`
	Hidden   bool            `json:"hidden,omitempty"`
}

// YAML renders the manifest
func (m Manifest) YAML() ([]byte, error) {
	return yaml.Marshal(m)
}

// StaticRoute builds a GET route answering with body as plain text
func StaticRoute(path, body string) Route {
	cfg, _ := json.Marshal(map[string]string{"body": body})
	return Route{
		Path:     path,
		Method:   "GET",
		Kind:     "static",
		Config:   cfg,
		Name:     fmt.Sprintf("Static %s", path),
		Category: "integration",
	}
}

// NewStaticManifest builds a manifest named name serving one static route per path,
// each answering with its own path
func NewStaticManifest(name string, paths ...string) Manifest {
	m := Manifest{Name: name}
	for _, p := range paths {
		m.Routes = append(m.Routes, StaticRoute(p, p))
	}
	return m
}

// UniquePrefix generates a unique route prefix for test resources
func UniquePrefix(prefix string) string {
	return fmt.Sprintf("/api/%s-%d", prefix, time.Now().UnixNano())
}
