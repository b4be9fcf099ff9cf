package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"fern" validate:"required"`
	Version                       string `env:"APP_VERSION" env-default:"dev"`
	Port                          int    `env:"PORT" env-default:"3000" validate:"min=1,max=65535"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost" validate:"required"`
	// Database port
	DatabasePort int `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"fern" validate:"required"`
	// Database SSL mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10m"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0" validate:"min=0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis is optional. An empty host disables the shared credential store and the run lock.
	RedisHost     string `env:"REDIS_HOST" env-default:""`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated). Empty disables event publishing.
	KafkaBrokers      string        `env:"KAFKA_BROKERS" env-default:""`
	KafkaStudentTopic string        `env:"KAFKA_STUDENT_TOPIC" env-default:"fern.student-converted"`
	KafkaRunTopic     string        `env:"KAFKA_RUN_TOPIC" env-default:"fern.conversion-completed"`
	KafkaWriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" env-default:"10s"`
	KafkaAutoCreate   bool          `env:"KAFKA_AUTO_CREATE_TOPICS" env-default:"true"`

	// Tracing settings
	OTLPEnabled  bool          `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string        `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string        `env:"OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure bool          `env:"OTLP_INSECURE" env-default:"true"`
	OTLPTimeout  time.Duration `env:"OTLP_TIMEOUT" env-default:"10s"`

	// Service endpoints
	StudentServiceURL string        `env:"STUDENT_SERVICE_URL" env-default:"" validate:"omitempty,url"`
	GradServiceURL    string        `env:"GRAD_SERVICE_URL" env-default:"" validate:"omitempty,url"`
	ProgramServiceURL string        `env:"PROGRAM_SERVICE_URL" env-default:"" validate:"omitempty,url"`
	RuleServiceURL    string        `env:"RULE_SERVICE_URL" env-default:"" validate:"omitempty,url"`
	SchoolServiceURL  string        `env:"SCHOOL_SERVICE_URL" env-default:"" validate:"omitempty,url"`
	HistoryServiceURL string        `env:"HISTORY_SERVICE_URL" env-default:"" validate:"omitempty,url"`
	ReportServiceURL  string        `env:"REPORT_SERVICE_URL" env-default:"" validate:"omitempty,url"`
	ServiceTimeout    time.Duration `env:"SERVICE_TIMEOUT" env-default:"30s"`

	// OAuth client credentials
	TokenURL           string `env:"TOKEN_URL" env-default:"" validate:"omitempty,url"`
	ClientID           string `env:"CLIENT_ID" env-default:""`
	ClientSecret       string `env:"CLIENT_SECRET" env-default:""`
	TokenScope         string `env:"TOKEN_SCOPE" env-default:""`
	TokenPath          string `env:"TOKEN_PATH" env-default:"access_token"`
	TokenExpiresInPath string `env:"TOKEN_EXPIRES_IN_PATH" env-default:"expires_in"`

	// Conversion tuning
	Partitions             int           `env:"PARTITIONS" env-default:"4" validate:"min=1"`
	CredentialRefreshCalls int           `env:"CREDENTIAL_REFRESH_CALLS" env-default:"100" validate:"min=1"`
	CredentialSkew         time.Duration `env:"CREDENTIAL_SKEW" env-default:"60s"`
	RuleCacheTTL           time.Duration `env:"RULE_CACHE_TTL" env-default:"30m"`
	RuleCacheSize          int           `env:"RULE_CACHE_SIZE" env-default:"1000" validate:"min=1"`
	RegisterMissing        bool          `env:"REGISTER_MISSING_IDENTITIES" env-default:"false"`
	FullReload             bool          `env:"FULL_RELOAD" env-default:"false"`
	GenerateDocuments      bool          `env:"GENERATE_DOCUMENTS" env-default:"true"`
	RunLockTTL             time.Duration `env:"RUN_LOCK_TTL" env-default:"6h"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file, binds the environment and validates the result
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the cross-field rules the service needs
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.TokenURL != "" && c.ClientID == "" {
		return errors.New("invalid configuration: CLIENT_ID is required when TOKEN_URL is set")
	}
	return nil
}

// RequireServices reports missing endpoints needed to run a conversion
func (c *Config) RequireServices() error {
	missing := []string{}
	for name, url := range map[string]string{
		"STUDENT_SERVICE_URL": c.StudentServiceURL,
		"GRAD_SERVICE_URL":    c.GradServiceURL,
		"PROGRAM_SERVICE_URL": c.ProgramServiceURL,
		"RULE_SERVICE_URL":    c.RuleServiceURL,
		"HISTORY_SERVICE_URL": c.HistoryServiceURL,
	} {
		if url == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("missing service endpoints: %s", strings.Join(missing, ", "))
	}
	return nil
}
