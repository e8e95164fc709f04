// internal/common/config/config.go
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Communication CommunicationConfig     `mapstructure:"communication"`
	Archive       ArchiveConfig           `mapstructure:"archive"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Metrics       MetricsConfig           `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// URL is the postgres:// form of the connection, used by the migration runner.
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// IntegrationConfig holds settings for the AWS mail and audit transports.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled          bool   `mapstructure:"enabled"`
			ConfigurationSet string `mapstructure:"configuration_set"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled       bool   `mapstructure:"enabled"`
			AuditTopicARN string `mapstructure:"audit_topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// CommunicationConfig holds dispatcher settings. SaveSentEmails is a pointer so an
// absent key can default to true.
type CommunicationConfig struct {
	FromEmail         string `mapstructure:"from_email"`
	SaveSentEmails    *bool  `mapstructure:"save_sent_emails"`
	SiteName          string `mapstructure:"site_name"`
	SiteDomain        string `mapstructure:"site_domain"`
	TemplateDir       string `mapstructure:"template_dir"`
	EventTypeCacheTTL int    `mapstructure:"event_type_cache_ttl"` // seconds
}

// ShouldSaveSentEmails reports whether copies of sent emails are persisted.
func (c CommunicationConfig) ShouldSaveSentEmails() bool {
	return c.SaveSentEmails == nil || *c.SaveSentEmails
}

// CacheTTL returns the event type cache TTL.
func (c CommunicationConfig) CacheTTL() time.Duration {
	return time.Duration(c.EventTypeCacheTTL) * time.Second
}

// ArchiveConfig controls indexing of sent emails into Elasticsearch.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}
