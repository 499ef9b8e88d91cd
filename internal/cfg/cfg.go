package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config adds dispatch-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	UpstreamURL     string
	UpstreamToken   string
	UpstreamTimeout time.Duration

	RefreshInterval    time.Duration
	AssignRefreshDelay time.Duration
	RosterCacheTTL     time.Duration

	DatabaseURL     string
	SlowQuery       time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	SlackWebhookURL string
	KafkaBrokers    string
	KafkaTopic      string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api/v1 requests (comma-separated for rotation)")
	fs.StringVar(&c.UpstreamURL, "upstream-url", "", "base URL of the dispatch backend (alerts, roster, interventions)")
	fs.StringVar(&c.UpstreamToken, "upstream-token", "", "bearer token sent to the dispatch backend")
	fs.DurationVar(&c.UpstreamTimeout, "upstream-timeout", 15*time.Second, "timeout for a single backend request")
	fs.DurationVar(&c.RefreshInterval, "refresh-interval", 60*time.Second, "interval between scheduled feed refreshes (0 = disabled, otherwise >= 1s)")
	fs.DurationVar(&c.AssignRefreshDelay, "assign-refresh-delay", 1500*time.Millisecond, "delay before re-reading the feed after a successful assignment (0..1m)")
	fs.DurationVar(&c.RosterCacheTTL, "roster-cache-ttl", 30*time.Second, "how long the available-team roster is cached (0 = no caching)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for assignment state (empty = in-memory or redis)")
	fs.DurationVar(&c.SlowQuery, "slow-query", 0, "log only database queries at or above this duration (0 = log all)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "Redis address for assignment state (host:port, exclusive with database-url)")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "Redis database number")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for assignment notifications")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for assignment events")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "dispatch.assignments", "Kafka topic for assignment events")
}

// Brokers splits KafkaBrokers, dropping empty entries.
func (c *Config) Brokers() []string { return splitList(c.KafkaBrokers) }

// APITokens returns the accepted API tokens. A comma-separated list lets an
// old and a new token be valid together during rotation.
func (c *Config) APITokens() []string { return splitList(c.APIToken) }

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if len(c.APITokens()) == 0 {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}

	if c.UpstreamURL == "" {
		errs = append(errs, errors.New("UPSTREAM_URL is required"))
	} else if u, err := url.Parse(c.UpstreamURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid UPSTREAM_URL %q (must be an absolute http or https URL)", c.UpstreamURL))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid UPSTREAM_TIMEOUT %v (must be > 0)", c.UpstreamTimeout))
	}

	if c.RefreshInterval != 0 && c.RefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("invalid REFRESH_INTERVAL %v (must be 0 or >= 1s)", c.RefreshInterval))
	}
	if c.AssignRefreshDelay < 0 || c.AssignRefreshDelay > time.Minute {
		errs = append(errs, fmt.Errorf("invalid ASSIGN_REFRESH_DELAY %v (must be 0..1m)", c.AssignRefreshDelay))
	}
	if c.RosterCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("invalid ROSTER_CACHE_TTL %v (must be >= 0)", c.RosterCacheTTL))
	}

	if c.DatabaseURL != "" && c.RedisAddr != "" {
		errs = append(errs, errors.New("DATABASE_URL and REDIS_ADDR are mutually exclusive"))
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("invalid REDIS_DB %d (must be >= 0)", c.RedisDB))
	}

	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
