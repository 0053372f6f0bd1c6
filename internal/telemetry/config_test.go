package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var nilConfig *Config
	assert.Equal(t, DefaultServiceName, nilConfig.GetServiceName())
	assert.Equal(t, "unknown", nilConfig.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, nilConfig.GetEndpoint())
	assert.False(t, nilConfig.TracingEnabled())
	assert.False(t, nilConfig.PrometheusEnabled())

	cfg := &Config{ServiceName: "edge", ServiceVersion: "1.2.3", Endpoint: "otel:4318"}
	assert.Equal(t, "edge", cfg.GetServiceName())
	assert.Equal(t, "1.2.3", cfg.GetServiceVersion())
	assert.Equal(t, "otel:4318", cfg.GetEndpoint())

	assert.Equal(t, DefaultSampling, (&TracingConfig{}).GetSampling())
	assert.Equal(t, 0.5, (&TracingConfig{Sampling: 0.5}).GetSampling())
}

func TestConfigEnabledFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		config         *Config
		wantTracing    bool
		wantMetrics    bool
		wantPrometheus bool
	}{
		{
			name:   "globally disabled",
			config: &Config{Tracing: &TracingConfig{Enabled: true}, Metrics: &MetricsConfig{Enabled: true, Prometheus: true}},
		},
		{
			name:        "tracing only",
			config:      &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true}},
			wantTracing: true,
		},
		{
			name:        "metrics without prometheus",
			config:      &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true}},
			wantMetrics: true,
		},
		{
			name:           "prometheus",
			config:         &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Prometheus: true}},
			wantMetrics:    true,
			wantPrometheus: true,
		},
		{
			name:   "prometheus flag with metrics disabled",
			config: &Config{Enabled: true, Metrics: &MetricsConfig{Prometheus: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantTracing, tt.config.TracingEnabled())
			assert.Equal(t, tt.wantMetrics, tt.config.MetricsEnabled())
			assert.Equal(t, tt.wantPrometheus, tt.config.PrometheusEnabled())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{name: "nil", config: nil},
		{name: "disabled ignores bad values", config: &Config{Tracing: &TracingConfig{Enabled: true, Sampling: 3}}},
		{
			name:   "valid",
			config: &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1}},
		},
		{
			name:    "sampling above one",
			config:  &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1.5}},
			wantErr: "sampling must be between 0.0 and 1.0",
		},
		{
			name:    "negative sampling",
			config:  &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: -0.1}},
			wantErr: "sampling must be between 0.0 and 1.0",
		},
		{
			name:    "no exporter left",
			config:  &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, DisableOTLP: true}},
			wantErr: "disableOTLP requires prometheus",
		},
		{
			name:   "scrape only",
			config: &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, DisableOTLP: true, Prometheus: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
