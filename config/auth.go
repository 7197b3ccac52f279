package config

import "time"

// AuthConfig groups token and credential configuration.
//
// Access tokens are short-lived JWTs; refresh tokens are longer-lived JWTs
// whose current value is also persisted on the user row so logout can
// invalidate them. Reset tokens are short-lived and single-use.
type AuthConfig struct {
	// Secret signs access and reset tokens.
	Secret string `env:"TOKEN_SECRET" envDefault:"dev-token-secret"`

	// Expiry is the access token lifetime.
	Expiry time.Duration `env:"TOKEN_EXPIRY" envDefault:"30m"`

	// RefreshSecret signs refresh tokens. Falls back to Secret when empty.
	RefreshSecret string `env:"REFRESH_TOKEN_SECRET" envDefault:""`

	// RefreshExpiry is the refresh token lifetime.
	RefreshExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// ResetExpiry is the password reset token lifetime.
	ResetExpiry time.Duration `env:"RESET_TOKEN_EXPIRY" envDefault:"1h"`

	// BcryptCost is the bcrypt cost used for password and API-key hashes.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.Expiry <= 0 {
		a.Expiry = 30 * time.Minute
	}
	if a.RefreshExpiry <= 0 {
		a.RefreshExpiry = 7 * 24 * time.Hour
	}
	if a.ResetExpiry <= 0 {
		a.ResetExpiry = time.Hour
	}
	if a.RefreshSecret == "" {
		a.RefreshSecret = a.Secret
	}
	// Clamp to the range bcrypt accepts; 4 is bcrypt.MinCost, 31 is MaxCost.
	if a.BcryptCost < 4 || a.BcryptCost > 31 {
		a.BcryptCost = 10
	}
}
