// Package handlers provides the built-in handler kinds that manifests can reference.
// Importing the package registers the kinds static, proxy and redirect.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
)

const (
	// KindStatic serves a fixed response body
	KindStatic = "static"
	// KindProxy forwards requests to an upstream service
	KindProxy = "proxy"
	// KindRedirect answers with an HTTP redirect
	KindRedirect = "redirect"
)

func init() {
	endpoint.RegisterKind(KindStatic, NewStatic)
	endpoint.RegisterKind(KindProxy, NewProxy)
	endpoint.RegisterKind(KindRedirect, NewRedirect)
}

// StaticConfig configures the static kind
type StaticConfig struct {
	Status      int               `json:"status,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	// Body is written verbatim when it is a JSON string, otherwise as raw JSON
	Body json.RawMessage `json:"body,omitempty"`
}

// NewStatic builds a handler returning the configured body
func NewStatic(raw json.RawMessage) (http.Handler, error) {
	var cfg StaticConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.Status == 0 {
		cfg.Status = http.StatusOK
	}
	if cfg.Status < 100 || cfg.Status > 599 {
		return nil, fmt.Errorf("static: invalid status %d", cfg.Status)
	}

	body := []byte(cfg.Body)
	var text string
	if len(cfg.Body) > 0 && json.Unmarshal(cfg.Body, &text) == nil {
		body = []byte(text)
		if cfg.ContentType == "" {
			cfg.ContentType = "text/plain; charset=utf-8"
		}
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range cfg.Headers {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", cfg.ContentType)
		w.WriteHeader(cfg.Status)
		_, _ = w.Write(body)
	}), nil
}

// ProxyConfig configures the proxy kind
type ProxyConfig struct {
	Upstream    string `json:"upstream"`
	StripPrefix string `json:"stripPrefix,omitempty"`
}

// NewProxy builds a reverse proxy to the configured upstream
func NewProxy(raw json.RawMessage) (http.Handler, error) {
	var cfg ProxyConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.Upstream == "" {
		return nil, fmt.Errorf("proxy: upstream is required")
	}
	target, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("proxy: invalid upstream: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("proxy: upstream scheme must be http or https, got %q", target.Scheme)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.FlushInterval = -1
	proxy.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, _ error) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
	}

	if cfg.StripPrefix == "" {
		return proxy, nil
	}
	return http.StripPrefix(strings.TrimSuffix(cfg.StripPrefix, "/"), proxy), nil
}

// RedirectConfig configures the redirect kind
type RedirectConfig struct {
	Location string `json:"location"`
	Status   int    `json:"status,omitempty"`
}

// NewRedirect builds a handler redirecting to a fixed location
func NewRedirect(raw json.RawMessage) (http.Handler, error) {
	var cfg RedirectConfig
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.Location == "" {
		return nil, fmt.Errorf("redirect: location is required")
	}
	if cfg.Status == 0 {
		cfg.Status = http.StatusFound
	}
	if cfg.Status < 300 || cfg.Status > 399 {
		return nil, fmt.Errorf("redirect: status must be 3xx, got %d", cfg.Status)
	}
	return http.RedirectHandler(cfg.Location, cfg.Status), nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid handler config: %w", err)
	}
	return nil
}
