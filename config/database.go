package config

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"conveyor"`
	Password string `env:"PASSWORD" envDefault:"conveyor"`
	Name     string `env:"NAME"     envDefault:"conveyor"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains broker connection configuration.
type RedisConfig struct {
	URI      string `env:"URI"       envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"  envDefault:""`
	DB       int    `env:"DB"        envDefault:"0"`
	// PoolSize bounds the connection pool shared by all queue handles.
	PoolSize int `env:"POOL_SIZE" envDefault:"10"`
}
