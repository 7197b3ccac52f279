package config

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Port is the port to bind the HTTP server to.
	Port int `env:"PORT" envDefault:"4000"`

	// BaseURL is the base URL of the application (e.g., "https://jobs.example.com").
	// Used for generating absolute URLs in outbound payloads.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:4000"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Port <= 0 || h.Port > 65535 {
		h.Port = 4000
	}
}
