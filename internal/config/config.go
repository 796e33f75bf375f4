// Package config loads the booking service configuration from environment
// variables, applying defaults, normalization and validation. Settings cover
// the HTTP server, persistence, business hours and slot rules, the deposit
// payment flow, draft staleness, the mobile-money gateway, optional Redis and
// RabbitMQ infrastructure, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// CORSConfig lists browser origins allowed to call the API; empty allows any.
type CORSConfig struct {
	AllowedOrigins []string
}

type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig controls trace export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string // host:port of the collector
	Insecure    bool   // plaintext gRPC
	ServiceName string
	SampleRatio float64 // root span sampling, 0..1
}

// DBConfig selects and addresses the relational store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // sqlite file path
	DSN    string // postgres DSN
}

// BusinessConfig describes the single location's trading rules.
type BusinessConfig struct {
	Timezone        string        // IANA zone, e.g. Africa/Nairobi
	Open            string        // HH:MM local
	Close           string        // HH:MM local
	SlotGranularity time.Duration // candidate spacing
	DefaultDuration time.Duration // unknown service fallback
	MaxSuggestions  int
	LookaheadDays   int // days scanned when the requested day is full
	LookaheadWant   int // stop once this many days with free slots are found
	PerDayDisplay   int // suggestions kept per lookahead day
	ChangeCutoff    time.Duration
	CatalogPath     string // optional YAML service catalog
}

// PaymentConfig tunes deposit reconciliation.
type PaymentConfig struct {
	VerifyMaxAttempts int
	VerifyWindow      time.Duration
	MaxPendingAge     time.Duration
	PushInflightTTL   time.Duration
	PollAttempts      int
	PollInterval      time.Duration
}

// StaleConfig holds draft garbage-collection thresholds.
type StaleConfig struct {
	FailedGrace   time.Duration
	NoPaymentAge  time.Duration
	HardCeiling   time.Duration
	SweepSchedule string // robfig/cron spec
}

// GatewayConfig addresses the mobile-money gateway.
type GatewayConfig struct {
	Mode           string // sandbox|daraja
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	DefaultRegion  string
	Timeout        time.Duration

	// SandboxApprove settles sandbox pushes after this long; 0 leaves them
	// pending until a callback is simulated.
	SandboxApprove time.Duration
}

// RedisConfig enables the shared verification limiter and reminder queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// AMQPConfig enables domain event publishing to RabbitMQ.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// Enabled reports whether an AMQP URL was configured.
func (a AMQPConfig) Enabled() bool { return strings.TrimSpace(a.URL) != "" }

// Config is the full service configuration, see Load.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging and API docs
	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DB       DBConfig
	Business BusinessConfig
	Payment  PaymentConfig
	Stale    StaleConfig
	Gateway  GatewayConfig
	Redis    RedisConfig
	AMQP     AMQPConfig

	// Rate limiting (HTTP edge)
	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// Location resolves the business timezone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Business.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MustLoad is Load for callers that cannot continue without a config.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load builds the configuration from the environment. Unset or unparsable
// variables fall back to their defaults; the result is then validated.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "bookings.db"),
			DSN:    getenv("DB_DSN", ""),
		},

		Business: BusinessConfig{
			Timezone:        getenv("BUSINESS_TIMEZONE", "Africa/Nairobi"),
			Open:            getenv("BUSINESS_OPEN", "09:00"),
			Close:           getenv("BUSINESS_CLOSE", "17:00"),
			SlotGranularity: getdur("SLOT_GRANULARITY", 30*time.Minute),
			DefaultDuration: getdur("DEFAULT_SERVICE_DURATION", 60*time.Minute),
			MaxSuggestions:  getint("MAX_SUGGESTIONS", 3),
			LookaheadDays:   getint("LOOKAHEAD_DAYS", 7),
			LookaheadWant:   getint("LOOKAHEAD_WANT_DAYS", 3),
			PerDayDisplay:   getint("SUGGESTIONS_PER_DAY", 3),
			ChangeCutoff:    getdur("CHANGE_CUTOFF", 72*time.Hour),
			CatalogPath:     getenv("CATALOG_PATH", ""),
		},

		Payment: PaymentConfig{
			VerifyMaxAttempts: getint("VERIFY_MAX_ATTEMPTS", 3),
			VerifyWindow:      getdur("VERIFY_WINDOW", 10*time.Minute),
			MaxPendingAge:     getdur("PAYMENT_MAX_AGE", 24*time.Hour),
			PushInflightTTL:   getdur("PUSH_INFLIGHT_TTL", 60*time.Second),
			PollAttempts:      getint("POLL_ATTEMPTS", 6),
			PollInterval:      getdur("POLL_INTERVAL", 10*time.Second),
		},

		Stale: StaleConfig{
			FailedGrace:   getdur("STALE_FAILED_GRACE", time.Hour),
			NoPaymentAge:  getdur("STALE_NO_PAYMENT", 48*time.Hour),
			HardCeiling:   getdur("STALE_HARD_CEILING", 7*24*time.Hour),
			SweepSchedule: getenv("STALE_SWEEP_SCHEDULE", "@every 15m"),
		},

		Gateway: GatewayConfig{
			Mode:           strings.ToLower(getenv("GATEWAY_MODE", "sandbox")),
			BaseURL:        strings.TrimRight(getenv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"), "/"),
			ConsumerKey:    getenv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getenv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:      getenv("MPESA_SHORTCODE", "174379"),
			Passkey:        getenv("MPESA_PASSKEY", ""),
			CallbackURL:    getenv("MPESA_CALLBACK_URL", ""),
			DefaultRegion:  strings.ToUpper(getenv("MPESA_DEFAULT_REGION", "KE")),
			Timeout:        getdur("MPESA_TIMEOUT", 15*time.Second),
			SandboxApprove: getdur("GATEWAY_SANDBOX_APPROVE", 20*time.Second),
		},

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		AMQP: AMQPConfig{
			URL:      getenv("AMQP_URL", ""),
			Exchange: getenv("AMQP_EXCHANGE", "booking.events"),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-booking-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	return cfg, cfg.validate()
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	if c.DB.Driver == "postgresql" || c.DB.Driver == "pg" {
		c.DB.Driver = "postgres"
	}
}

// validate reports the first problem found, checking the server settings
// before each section.
func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	for _, chk := range []struct {
		bad bool
		msg string
	}{
		{strings.TrimSpace(c.Port) == "", "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0, "timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
	} {
		if chk.bad {
			return errors.New(chk.msg)
		}
	}

	for _, v := range []interface{ validate() error }{c.DB, c.Business, c.Payment, c.Stale, c.Gateway} {
		if err := v.validate(); err != nil {
			return err
		}
	}

	for _, chk := range []struct {
		bad bool
		msg string
	}{
		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	} {
		if chk.bad {
			return errors.New(chk.msg)
		}
	}
	return nil
}

func (d DBConfig) validate() error {
	switch d.Driver {
	case "sqlite":
		if strings.TrimSpace(d.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(d.DSN) == "" {
			return errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	return nil
}

func (b BusinessConfig) validate() error {
	if _, err := time.LoadLocation(b.Timezone); err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
	}
	open, err := ParseClock(b.Open)
	if err != nil {
		return fmt.Errorf("BUSINESS_OPEN: %w", err)
	}
	closing, err := ParseClock(b.Close)
	if err != nil {
		return fmt.Errorf("BUSINESS_CLOSE: %w", err)
	}
	if closing <= open {
		return errors.New("BUSINESS_CLOSE must be after BUSINESS_OPEN")
	}
	if b.SlotGranularity < time.Minute {
		return errors.New("SLOT_GRANULARITY must be >= 1m")
	}
	if b.DefaultDuration < time.Minute {
		return errors.New("DEFAULT_SERVICE_DURATION must be >= 1m")
	}
	if b.MaxSuggestions < 1 || b.PerDayDisplay < 1 {
		return errors.New("MAX_SUGGESTIONS and SUGGESTIONS_PER_DAY must be >= 1")
	}
	if b.LookaheadDays < 0 || b.LookaheadWant < 1 {
		return errors.New("LOOKAHEAD_DAYS must be >= 0 and LOOKAHEAD_WANT_DAYS >= 1")
	}
	if b.ChangeCutoff < 0 {
		return errors.New("CHANGE_CUTOFF must be >= 0")
	}
	return nil
}

func (p PaymentConfig) validate() error {
	if p.VerifyMaxAttempts < 1 || p.VerifyWindow <= 0 {
		return errors.New("VERIFY_MAX_ATTEMPTS must be >= 1 and VERIFY_WINDOW > 0")
	}
	if p.MaxPendingAge <= 0 || p.PushInflightTTL <= 0 {
		return errors.New("PAYMENT_MAX_AGE and PUSH_INFLIGHT_TTL must be > 0")
	}
	if p.PollAttempts < 0 || p.PollInterval <= 0 {
		return errors.New("POLL_ATTEMPTS must be >= 0 and POLL_INTERVAL > 0")
	}
	return nil
}

func (s StaleConfig) validate() error {
	if s.FailedGrace <= 0 || s.NoPaymentAge <= 0 || s.HardCeiling <= 0 {
		return errors.New("staleness thresholds must be positive durations")
	}
	if s.HardCeiling < s.NoPaymentAge {
		return errors.New("STALE_HARD_CEILING must be >= STALE_NO_PAYMENT")
	}
	if strings.TrimSpace(s.SweepSchedule) == "" {
		return errors.New("STALE_SWEEP_SCHEDULE must not be empty")
	}
	return nil
}

func (g GatewayConfig) validate() error {
	switch g.Mode {
	case "sandbox":
	case "daraja":
		if g.ConsumerKey == "" || g.ConsumerSecret == "" || g.Passkey == "" || g.CallbackURL == "" {
			return errors.New("MPESA_CONSUMER_KEY, MPESA_CONSUMER_SECRET, MPESA_PASSKEY and MPESA_CALLBACK_URL are required when GATEWAY_MODE=daraja")
		}
	default:
		return errors.New("GATEWAY_MODE must be one of: sandbox, daraja")
	}
	if len(g.DefaultRegion) != 2 {
		return errors.New("MPESA_DEFAULT_REGION must be a two-letter region code")
	}
	return nil
}

// ParseClock converts "HH:MM" into an offset from local midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, errors.New("expected HH:MM")
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
