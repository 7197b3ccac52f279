package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Token and credential configuration
//   - database.go: Database and broker configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode, queue, and worker configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Authentication configuration. Fields carry full variable names because
	// refresh token variables are REFRESH_TOKEN_*, not TOKEN_REFRESH_*.
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,event-demux,webhook-worker,scheduler"`

	// Queue configuration (allow-list, worker tuning)
	Queues QueueConfig

	// Webhook delivery configuration
	Webhooks WebhookDeliveryConfig `envPrefix:"WEBHOOK_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Auth.Sanitize()
	c.Queues.Sanitize()
	c.Webhooks.Sanitize()
}
