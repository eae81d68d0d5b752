package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "Europe/Brussels"
	configPathEnv   = "PUBLISHER_CONFIG"

	mailchimpAPIKeyEnv           = "MAILCHIMP_API"
	mailchimpServerEnv           = "MAILCHIMP_SERVER"
	mailchimpFromNameEnv         = "MAILCHIMP_FROM_NAME"
	mailchimpReplyToEnv          = "MAILCHIMP_REPLY_TO"
	mailchimpListIDEnv           = "MAILCHIMP_LIST_ID"
	mailchimpInterestCategoryEnv = "MAILCHIMP_INTEREST_CATEGORY_ID"
	mailchimpKindCategoryEnv     = "MAILCHIMP_KIND_CATEGORY_ID"
	publicationChannelEnv        = "MAILCHIMP_PUBLICATION_CHANNEL"
	storeDriverEnv               = "STORE_DRIVER"
	sparqlEndpointEnv            = "SPARQL_ENDPOINT"
	databaseDSNEnv               = "DATABASE_DSN"
	redisAddressEnv              = "REDIS_ADDRESS"
	telegramTokenEnv             = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv            = "TELEGRAM_CHAT_ID"
	logLevelEnv                  = "LOG_LEVEL"
	httpAddrEnv                  = "HTTP_ADDR"
	sweepIntervalEnv             = "SWEEP_INTERVAL"
)

// Store drivers.
const (
	DriverSPARQL   = "sparql"
	DriverPostgres = "postgres"
)

// Config holds every setting of the publisher, built once at startup.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	HTTP          HTTPConfig         `yaml:"http"`
	Mailchimp     MailchimpConfig    `yaml:"mailchimp"`
	Publication   PublicationConfig  `yaml:"publication"`
	Retry         RetryConfig        `yaml:"retry"`
	Store         StoreConfig        `yaml:"store"`
	Lock          LockConfig         `yaml:"lock"`
	Render        RenderConfig       `yaml:"render"`
	Sweep         SweepConfig        `yaml:"sweep"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// HTTPConfig describes the trigger endpoint listener.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// MailchimpConfig wires the campaign provider account.
type MailchimpConfig struct {
	APIKey             string        `yaml:"apiKey" validate:"required"`
	Server             string        `yaml:"server"`
	FromName           string        `yaml:"fromName" validate:"required"`
	ReplyTo            string        `yaml:"replyTo" validate:"required,email"`
	ListID             string        `yaml:"listId" validate:"required"`
	InterestCategoryID string        `yaml:"interestCategoryId" validate:"required"`
	KindCategoryID     string        `yaml:"kindCategoryId" validate:"required"`
	PageSize           int           `yaml:"pageSize" validate:"min=1,max=1000"`
	RequestsPerSecond  float64       `yaml:"requestsPerSecond" validate:"gt=0"`
	Timeout            time.Duration `yaml:"timeout" validate:"gt=0"`
}

// DataCenter returns the API host prefix, derived from the key suffix unless set explicitly.
func (m MailchimpConfig) DataCenter() string {
	if m.Server != "" {
		return m.Server
	}
	if i := strings.LastIndex(m.APIKey, "-"); i >= 0 && i < len(m.APIKey)-1 {
		return m.APIKey[i+1:]
	}
	return "us1"
}

// PublicationConfig scopes which tasks and subscribers are targeted.
type PublicationConfig struct {
	Channel    string   `yaml:"channel" validate:"required"`
	KindLabels []string `yaml:"kindLabels" validate:"len=2,dive,required"`
}

// RetryConfig tunes the bounded-retry deletion of provider resources.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts" validate:"min=1"`
	Delay       time.Duration `yaml:"delay" validate:"gt=0"`
}

// StoreConfig selects and locates the content store.
type StoreConfig struct {
	Driver         string `yaml:"driver" validate:"oneof=sparql postgres"`
	SPARQLEndpoint string `yaml:"sparqlEndpoint" validate:"required_if=Driver sparql"`
	PublicGraph    string `yaml:"publicGraph"`
	DSN            string `yaml:"dsn" validate:"required_if=Driver postgres"`
}

// LockConfig enables the distributed run lock when RedisAddress is set.
type LockConfig struct {
	RedisAddress string        `yaml:"redisAddress"`
	Key          string        `yaml:"key" validate:"required"`
	TTL          time.Duration `yaml:"ttl" validate:"gt=0"`
}

// Enabled reports whether a Redis lock should be wired.
func (l LockConfig) Enabled() bool {
	return l.RedisAddress != ""
}

// RenderConfig controls newsletter templates per press release creator.
type RenderConfig struct {
	Creators  []string          `yaml:"creators"`
	Templates map[string]string `yaml:"templates"`
	Timezone  string            `yaml:"timezone"`
	location  *time.Location    `yaml:"-"`
}

// Location resolves the render timezone string to a time.Location.
func (r RenderConfig) Location() *time.Location {
	if r.location != nil {
		return r.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SweepConfig schedules the periodic cleanup sweep; zero disables it.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval" validate:"min=0"`
}

// NotificationConfig encapsulates outbound operator alerts.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether failure alerts should be sent.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// ConfigError lists the settings that are missing or invalid.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, ", ")
}

// Load reads .env, the YAML file (path argument or PUBLISHER_CONFIG) and environment overrides,
// then validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &ConfigError{Problems: []string{fmt.Sprintf("read %s: %v", path, err)}}
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, &ConfigError{Problems: []string{fmt.Sprintf("parse %s: %v", path, err)}}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConfigError{Problems: []string{err.Error()}}
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Namespace()
		if env, ok := envNames[name]; ok {
			name = env
		}
		problems = append(problems, fmt.Sprintf("%s (%s)", name, fe.Tag()))
	}
	sort.Strings(problems)
	return &ConfigError{Problems: problems}
}

var envNames = map[string]string{
	"Config.Mailchimp.APIKey":             mailchimpAPIKeyEnv,
	"Config.Mailchimp.FromName":           mailchimpFromNameEnv,
	"Config.Mailchimp.ReplyTo":            mailchimpReplyToEnv,
	"Config.Mailchimp.ListID":             mailchimpListIDEnv,
	"Config.Mailchimp.InterestCategoryID": mailchimpInterestCategoryEnv,
	"Config.Mailchimp.KindCategoryID":     mailchimpKindCategoryEnv,
	"Config.Publication.Channel":          publicationChannelEnv,
	"Config.Store.SPARQLEndpoint":         sparqlEndpointEnv,
	"Config.Store.DSN":                    databaseDSNEnv,
}

func (c *Config) applyEnvOverrides() error {
	overrides := []struct {
		env    string
		target *string
	}{
		{mailchimpAPIKeyEnv, &c.Mailchimp.APIKey},
		{mailchimpServerEnv, &c.Mailchimp.Server},
		{mailchimpFromNameEnv, &c.Mailchimp.FromName},
		{mailchimpReplyToEnv, &c.Mailchimp.ReplyTo},
		{mailchimpListIDEnv, &c.Mailchimp.ListID},
		{mailchimpInterestCategoryEnv, &c.Mailchimp.InterestCategoryID},
		{mailchimpKindCategoryEnv, &c.Mailchimp.KindCategoryID},
		{publicationChannelEnv, &c.Publication.Channel},
		{storeDriverEnv, &c.Store.Driver},
		{sparqlEndpointEnv, &c.Store.SPARQLEndpoint},
		{databaseDSNEnv, &c.Store.DSN},
		{redisAddressEnv, &c.Lock.RedisAddress},
		{telegramTokenEnv, &c.Notifications.Telegram.BotToken},
		{telegramChatIDEnv, &c.Notifications.Telegram.ChatID},
		{logLevelEnv, &c.Logging.Level},
		{httpAddrEnv, &c.HTTP.Addr},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}

	if v := strings.TrimSpace(os.Getenv(sweepIntervalEnv)); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return &ConfigError{Problems: []string{fmt.Sprintf("%s: %v", sweepIntervalEnv, err)}}
		}
		c.Sweep.Interval = d
	}
	return nil
}

// parseDuration accepts Go durations and plain seconds.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func (c *Config) bindTimezone() {
	tz := c.Render.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to UTC", tz)
		loc = time.UTC
	}
	c.Render.location = loc
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Mailchimp: MailchimpConfig{
			PageSize:          1000,
			RequestsPerSecond: 5,
			Timeout:           20 * time.Second,
		},
		Publication: PublicationConfig{
			Channel: "http://themis.vlaanderen.be/id/publicatiekanaal/mailchimp",
			KindLabels: []string{
				"Ik ontvang enkel persberichten",
				"Ik ontvang zowel persberichten als beslissingen",
			},
		},
		Retry: RetryConfig{MaxAttempts: 4, Delay: 2 * time.Second},
		Store: StoreConfig{
			Driver:         DriverSPARQL,
			SPARQLEndpoint: "http://database:8890/sparql",
			PublicGraph:    "http://mu.semte.ch/graphs/public",
		},
		Lock:   LockConfig{Key: "mailchimp-publisher", TTL: 15 * time.Minute},
		Render: RenderConfig{Timezone: defaultTimezone},
	}
}
