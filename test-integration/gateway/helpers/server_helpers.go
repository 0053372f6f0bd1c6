// Package helpers provides the gateway lifecycle and request helpers shared by the
// integration specs.
package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	gateway "github.com/stacklok/toolhive-gateway/internal/app"
	"github.com/stacklok/toolhive-gateway/internal/auth"
	"github.com/stacklok/toolhive-gateway/internal/config"
	"github.com/stacklok/toolhive-gateway/internal/store"
	"github.com/stacklok/toolhive-gateway/internal/store/inmemory"
	"github.com/stacklok/toolhive-gateway/internal/telemetry"
)

const testSecret = "integration-test-secret-0123456789abcdef"

// ServerTestHelper manages the gateway lifecycle for testing. The gateway runs
// with JWT authentication, a watched manifest directory and an in-memory store
// that the helper seeds with users.
type ServerTestHelper struct {
	ctx        context.Context
	workDir    string
	modulesDir string
	configPath string
	baseURL    string
	httpClient *http.Client
	app        *gateway.GatewayApp
	store      *inmemory.Store
}

// NewServerTestHelper prepares a manifest directory, a secret file and a config
// file below workDir
func NewServerTestHelper(ctx context.Context, workDir string) (*ServerTestHelper, error) {
	modulesDir := filepath.Join(workDir, "modules")
	if err := os.MkdirAll(modulesDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create modules dir: %w", err)
	}
	secretPath := filepath.Join(workDir, "jwt-secret")
	if err := os.WriteFile(secretPath, []byte(testSecret), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write secret: %w", err)
	}
	configPath := WriteConfigYAML(workDir, modulesDir, secretPath)

	return &ServerTestHelper{
		ctx:        ctx,
		workDir:    workDir,
		modulesDir: modulesDir,
		configPath: configPath,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		store: inmemory.New(),
	}, nil
}

// WriteConfigYAML writes a gateway configuration for testing and returns its path
func WriteConfigYAML(dir, modulesDir, secretPath string) string {
	configContent := fmt.Sprintf(`modules:
  path: %s
  watch: true
  debounce: 100ms
catalog:
  syncOnStartup: true
  syncOnReload: true
access:
  cacheTTL: 1m
auth:
  mode: jwt
  jwtSecretFile: %s
  principalCacheTTL: 1m
events:
  heartbeat: 1s
`, modulesDir, secretPath)

	configPath := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(configPath, []byte(configContent), 0o600)).To(gomega.Succeed())
	return configPath
}

// StartServer builds the gateway and starts it on a random loopback port
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := gateway.NewGatewayApp(s.ctx,
		gateway.WithConfig(cfg),
		gateway.WithAddress("127.0.0.1:0"),
		gateway.WithStore(s.store),
		gateway.WithTelemetry(telemetry.NewNoOp()),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	select {
	case <-app.Listening():
		s.baseURL = "http://" + app.Addr()
		return nil
	case err := <-errChan:
		return fmt.Errorf("server start failed: %w", err)
	case <-time.After(10 * time.Second):
		return fmt.Errorf("server did not start listening")
	}
}

// StopServer gracefully stops the gateway
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits until the readiness probe passes
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// App returns the running gateway
func (s *ServerTestHelper) App() *gateway.GatewayApp {
	return s.app
}

// GetBaseURL returns the base URL of the server
func (s *ServerTestHelper) GetBaseURL() string {
	return s.baseURL
}

// PutUser seeds a user in the store backing the gateway
func (s *ServerTestHelper) PutUser(id string, role store.Role, vipExpiresAt *time.Time) {
	s.store.PutUser(store.User{ID: id, Role: role, VIPExpiresAt: vipExpiresAt})
}

// Token signs a bearer token for userID with the gateway secret
func (*ServerTestHelper) Token(userID string) string {
	token, err := auth.SignToken([]byte(testSecret), userID, time.Hour)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return token
}

// WriteManifest writes m into the watched manifest directory as file
func (s *ServerTestHelper) WriteManifest(file string, m Manifest) {
	data, err := m.YAML()
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	s.WriteRawManifest(file, data)
}

// WriteRawManifest writes data verbatim into the watched manifest directory
func (s *ServerTestHelper) WriteRawManifest(file string, data []byte) {
	gomega.Expect(os.WriteFile(filepath.Join(s.modulesDir, file), data, 0o600)).To(gomega.Succeed())
}

// RemoveManifest deletes file from the watched manifest directory
func (s *ServerTestHelper) RemoveManifest(file string) {
	gomega.Expect(os.Remove(filepath.Join(s.modulesDir, file))).To(gomega.Succeed())
}

// Get makes a GET request as userID, anonymously when userID is empty
func (s *ServerTestHelper) Get(path, userID string) (*http.Response, error) {
	return s.Do(http.MethodGet, path, userID, nil)
}

// Do makes a request as userID with body encoded as JSON when not nil
func (s *ServerTestHelper) Do(method, path, userID string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token(userID))
	}
	return s.httpClient.Do(req)
}

// StatusOf makes a GET request as userID and returns only the status code
func (s *ServerTestHelper) StatusOf(path, userID string) (int, error) {
	resp, err := s.Get(path, userID)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// DecodeJSON reads resp into target and closes the body
func DecodeJSON(resp *http.Response, target any) error {
	defer func() {
		_ = resp.Body.Close()
	}()
	return json.NewDecoder(resp.Body).Decode(target)
}
