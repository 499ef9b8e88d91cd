package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
	"time"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		APIToken:              "test-token-123",
		UpstreamURL:           "https://backend.example",
		UpstreamTimeout:       15 * time.Second,
		RefreshInterval:       time.Minute,
		AssignRefreshDelay:    1500 * time.Millisecond,
		RosterCacheTTL:        30 * time.Second,
		KafkaTopic:            "dispatch.assignments",
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.RefreshInterval != 60*time.Second {
		t.Errorf("RefreshInterval = %v, want 60s", c.RefreshInterval)
	}
	if c.AssignRefreshDelay != 1500*time.Millisecond {
		t.Errorf("AssignRefreshDelay = %v, want 1.5s", c.AssignRefreshDelay)
	}
	if c.KafkaTopic != "dispatch.assignments" {
		t.Errorf("KafkaTopic = %q", c.KafkaTopic)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-http-port", "9090",
		"-upstream-url", "http://backend:3000/api",
		"-refresh-interval", "0",
		"-assign-refresh-delay", "2s",
		"-redis-addr", "redis:6379",
		"-kafka-brokers", "k1:9092, k2:9092,",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.UpstreamURL != "http://backend:3000/api" {
		t.Errorf("UpstreamURL = %q", c.UpstreamURL)
	}
	if c.RefreshInterval != 0 {
		t.Errorf("RefreshInterval = %v, want 0", c.RefreshInterval)
	}
	if c.AssignRefreshDelay != 2*time.Second {
		t.Errorf("AssignRefreshDelay = %v, want 2s", c.AssignRefreshDelay)
	}
	if c.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q", c.RedisAddr)
	}
	if b := c.Brokers(); len(b) != 2 || b[0] != "k1:9092" || b[1] != "k2:9092" {
		t.Errorf("Brokers = %v", b)
	}
}

func TestAPITokens(t *testing.T) {
	t.Parallel()

	c := Config{APIToken: "old, new ,,"}
	got := c.APITokens()
	if len(got) != 2 || got[0] != "old" || got[1] != "new" {
		t.Errorf("APITokens = %v, want [old new]", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	with := func(mut func(c *Config)) Config {
		c := validBase()
		mut(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{name: "defaults are valid", cfg: validBase()},
		{name: "refresh disabled", cfg: with(func(c *Config) { c.RefreshInterval = 0 })},
		{name: "zero assign delay", cfg: with(func(c *Config) { c.AssignRefreshDelay = 0 })},
		{name: "postgres only", cfg: with(func(c *Config) { c.DatabaseURL = "postgres://x" })},
		{name: "budget is drain plus one", cfg: with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 60, 61 })},
		{
			name:      "drain zero",
			cfg:       with(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 301 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget equals drain",
			cfg:       with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 60, 60 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "port above max",
			cfg:       with(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "empty api token",
			cfg:       with(func(c *Config) { c.APIToken = "" }),
			wantErr:   true,
			errSubstr: []string{"API_TOKEN"},
		},
		{
			name:      "blank api token list",
			cfg:       with(func(c *Config) { c.APIToken = " , " }),
			wantErr:   true,
			errSubstr: []string{"API_TOKEN"},
		},
		{
			name:      "empty upstream",
			cfg:       with(func(c *Config) { c.UpstreamURL = "" }),
			wantErr:   true,
			errSubstr: []string{"UPSTREAM_URL is required"},
		},
		{
			name:      "relative upstream",
			cfg:       with(func(c *Config) { c.UpstreamURL = "/api" }),
			wantErr:   true,
			errSubstr: []string{"invalid UPSTREAM_URL"},
		},
		{
			name:      "zero upstream timeout",
			cfg:       with(func(c *Config) { c.UpstreamTimeout = 0 }),
			wantErr:   true,
			errSubstr: []string{"UPSTREAM_TIMEOUT"},
		},
		{
			name:      "sub-second refresh",
			cfg:       with(func(c *Config) { c.RefreshInterval = 500 * time.Millisecond }),
			wantErr:   true,
			errSubstr: []string{"REFRESH_INTERVAL"},
		},
		{
			name:      "assign delay too long",
			cfg:       with(func(c *Config) { c.AssignRefreshDelay = 2 * time.Minute }),
			wantErr:   true,
			errSubstr: []string{"ASSIGN_REFRESH_DELAY"},
		},
		{
			name:      "negative roster ttl",
			cfg:       with(func(c *Config) { c.RosterCacheTTL = -time.Second }),
			wantErr:   true,
			errSubstr: []string{"ROSTER_CACHE_TTL"},
		},
		{
			name: "postgres and redis",
			cfg: with(func(c *Config) {
				c.DatabaseURL = "postgres://x"
				c.RedisAddr = "redis:6379"
			}),
			wantErr:   true,
			errSubstr: []string{"mutually exclusive"},
		},
		{
			name:      "negative redis db",
			cfg:       with(func(c *Config) { c.RedisDB = -1 }),
			wantErr:   true,
			errSubstr: []string{"REDIS_DB"},
		},
		{
			name: "kafka brokers without topic",
			cfg: with(func(c *Config) {
				c.KafkaBrokers = "k1:9092"
				c.KafkaTopic = ""
			}),
			wantErr:   true,
			errSubstr: []string{"KAFKA_TOPIC"},
		},
		// Error accumulation: all fields invalid
		{
			name:      "all fields invalid",
			cfg:       Config{},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "API_TOKEN", "UPSTREAM_URL", "UPSTREAM_TIMEOUT"},
		},
		{
			name:      "extreme negative values",
			cfg:       Config{DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port int
		token, upstream     string
	}{
		{60, 90, 8080, "tok", "https://backend"},
		{1, 2, 1, "t", "http://b"},
		{299, 300, 65535, "t", "http://b"},
		{0, 0, 0, "", ""},
		{-1, -1, -1, "", "ftp://x"},
		{300, 300, 65535, "t", "http://b"},
		{150, 100, 8080, "t", "http://b"},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.token, s.upstream)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port int, token, upstream string) {
		c := validBase()
		c.DrainSeconds = drain
		c.ShutdownBudgetSeconds = budget
		c.APIPort = port
		c.APIToken = token
		c.UpstreamURL = upstream
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		tokenOK := strings.Trim(token, ", \t\n\v\f\r") != ""

		if !(drainOK && budgetOK && portOK && crossOK && tokenOK) && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
