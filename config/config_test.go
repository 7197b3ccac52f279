package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []ServiceMode
		wantErr bool
	}{
		{"single", "http", []ServiceMode{ServiceModeHTTP}, false},
		{
			"all",
			"http,event-demux,webhook-worker,scheduler",
			[]ServiceMode{ServiceModeHTTP, ServiceModeEventDemux, ServiceModeWebhookWorker, ServiceModeScheduler},
			false,
		},
		{"whitespace tolerated", " http , scheduler ", []ServiceMode{ServiceModeHTTP, ServiceModeScheduler}, false},
		{"empty", "", nil, true},
		{"only commas", ",,", nil, true},
		{"unknown", "http,reaper", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, len(tt.want))
			for _, mode := range tt.want {
				assert.True(t, got[mode], "expected %s enabled", mode)
			}
		})
	}
}

func TestSanitizeDefaults(t *testing.T) {
	var cfg AppConfig
	cfg.Sanitize()

	assert.Equal(t, 4000, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Minute, cfg.Auth.Expiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshExpiry)
	assert.Equal(t, time.Hour, cfg.Auth.ResetExpiry)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, []string{QueueJobs, QueueWebhooks, QueueScheduled}, cfg.Queues.Names)
	assert.Equal(t, time.Second, cfg.Queues.SchedulerTick)
	assert.Equal(t, 10*time.Second, cfg.Webhooks.Timeout)
	assert.Equal(t, 3, cfg.Webhooks.MaxAttempts)
}

func TestAuthConfigSanitize(t *testing.T) {
	t.Run("refresh secret falls back to secret", func(t *testing.T) {
		a := AuthConfig{Secret: "s3cret"}
		a.Sanitize()
		assert.Equal(t, "s3cret", a.RefreshSecret)
	})

	t.Run("explicit refresh secret kept", func(t *testing.T) {
		a := AuthConfig{Secret: "s3cret", RefreshSecret: "other"}
		a.Sanitize()
		assert.Equal(t, "other", a.RefreshSecret)
	})

	t.Run("bcrypt cost clamped", func(t *testing.T) {
		a := AuthConfig{BcryptCost: 99}
		a.Sanitize()
		assert.Equal(t, 10, a.BcryptCost)
	})
}

func TestAuthConfigEnvNames(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "access-secret")
	t.Setenv("TOKEN_EXPIRY", "15m")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
	t.Setenv("REFRESH_TOKEN_EXPIRY", "72h")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, "access-secret", cfg.Auth.Secret)
	assert.Equal(t, 15*time.Minute, cfg.Auth.Expiry)
	assert.Equal(t, "refresh-secret", cfg.Auth.RefreshSecret, "refresh tokens get their own secret")
	assert.Equal(t, 72*time.Hour, cfg.Auth.RefreshExpiry)
}

func TestHTTPConfigSanitize(t *testing.T) {
	h := HTTPConfig{Port: -1}
	h.Sanitize()
	assert.Equal(t, 4000, h.Port)

	h = HTTPConfig{Port: 8080}
	h.Sanitize()
	assert.Equal(t, 8080, h.Port)
}
