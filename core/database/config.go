package database

const (
	// DriverSQLite selects the embedded single-file store.
	DriverSQLite = "sqlite3"
	// DriverPostgres selects a PostgreSQL server.
	DriverPostgres = "postgres"
)

// Config holds database connection settings.
type Config struct {
	Driver string `yaml:"driver" envconfig:"DB_DRIVER"`
	// Path is the SQLite file location.
	Path string `yaml:"path" envconfig:"DB_PATH"`

	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     string `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name     string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode  string `yaml:"sslmode" envconfig:"DB_SSLMODE"`

	MaxConnections int `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}
