package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xaenox/clone-bot/internal/brain"
	"github.com/xaenox/clone-bot/internal/embedding"
	"github.com/xaenox/clone-bot/internal/models"
	"github.com/xaenox/clone-bot/internal/storage"
)

const DefaultPath = "config.yaml"

type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Matrix    MatrixConfig    `mapstructure:"matrix"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Mimicry   MimicryConfig   `mapstructure:"mimicry"`
	Style     StyleConfig     `mapstructure:"style"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Ghost     GhostConfig     `mapstructure:"ghost"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Contacts  []ContactConfig `mapstructure:"contacts"`
}

type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	PollTimeout int    `mapstructure:"poll_timeout"`
	Debug       bool   `mapstructure:"debug"`
	APIEndpoint string `mapstructure:"api_endpoint"`
}

type MatrixConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Homeserver  string `mapstructure:"homeserver"`
	UserID      string `mapstructure:"user_id"`
	AccessToken string `mapstructure:"access_token"`
	AutoJoin    bool   `mapstructure:"auto_join"`
}

// StorageConfig selects where the review queue and heartbeat live
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Database DatabaseConfig `mapstructure:"database"`
}

const (
	StorageFile     = "file"
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	// Dimensions zero keeps the backend default (128 local, 256 remote)
	Dimensions int `mapstructure:"dimensions"`
}

type MemoryConfig struct {
	// Index is "sqlite" (on disk under IndexDir) or "memory"
	Index    string `mapstructure:"index"`
	IndexDir string `mapstructure:"index_dir"`
	// Log mirrors every exchange into memory.md
	Log bool `mapstructure:"log"`
}

// MimicryConfig overrides the persona's timing traits when set
type MimicryConfig struct {
	ResponseTimeAvg  time.Duration `mapstructure:"response_time_avg"`
	OnlineHoursStart int           `mapstructure:"online_hours_start"`
	OnlineHoursEnd   int           `mapstructure:"online_hours_end"`
	TypoRate         float64       `mapstructure:"typo_rate"`
}

type StyleConfig struct {
	Capitalization   string `mapstructure:"capitalization"`
	AvgMessageLength int    `mapstructure:"avg_message_length"`
}

type SafetyConfig struct {
	BlockAt string `mapstructure:"block_at"`
	QueueAt string `mapstructure:"queue_at"`
}

type GhostConfig struct {
	// Heartbeat pings presence while the gateways run. Only turn it on when
	// the gateways log in as the user's own account: bot accounts would keep
	// the user "online" and ghost mode would never answer.
	Heartbeat         bool          `mapstructure:"heartbeat"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type GatewayConfig struct {
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	QueueSize      int           `mapstructure:"queue_size"`
}

type ContactConfig struct {
	Name         string `mapstructure:"name"`
	Closeness    string `mapstructure:"closeness"`
	Relationship string `mapstructure:"relationship"`
	Rules        string `mapstructure:"rules"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Host == "" {
		return DatabaseConfig{}, fmt.Errorf("missing host in %q", u.Redacted())
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")

	v.SetDefault("telegram.poll_timeout", 30)

	v.SetDefault("matrix.auto_join", true)

	v.SetDefault("storage.driver", StorageFile)
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.user", "postgres")
	v.SetDefault("storage.database.sslmode", "disable")

	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.temperature", 0.8)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("embedding.provider", string(embedding.BackendLocal))

	v.SetDefault("memory.index", "sqlite")
	v.SetDefault("memory.log", true)

	v.SetDefault("safety.block_at", models.SeverityCritical.String())
	v.SetDefault("safety.queue_at", models.SeverityHigh.String())

	v.SetDefault("ghost.heartbeat", false)
	v.SetDefault("ghost.heartbeat_interval", 2*time.Minute)

	v.SetDefault("gateway.reconnect_delay", 3*time.Second)
	v.SetDefault("gateway.queue_size", 64)
}

// LoadConfig reads path if it exists, then applies environment overrides.
// A missing file is not an error: defaults and env are enough to run.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if dataDir := v.GetString("DATA_DIR"); dataDir != "" {
		config.DataDir = dataDir
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Storage.Database = dbConfig
		config.Storage.Driver = StoragePostgres
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
		config.Telegram.Enabled = true
	}
	if token := v.GetString("MATRIX_ACCESS_TOKEN"); token != "" {
		config.Matrix.AccessToken = token
	}

	if provider := v.GetString("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if model := v.GetString("LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}

	keys := map[brain.Backend]string{
		brain.BackendOpenAI:    v.GetString("OPENAI_API_KEY"),
		brain.BackendAnthropic: v.GetString("ANTHROPIC_API_KEY"),
		brain.BackendDeepSeek:  v.GetString("DEEPSEEK_API_KEY"),
	}
	if config.LLM.Provider == "" {
		config.LLM.Provider = string(brain.DetectBackend(keys))
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = keys[brain.Backend(strings.ToLower(config.LLM.Provider))]
	}
	if config.Embedding.APIKey == "" && strings.EqualFold(config.Embedding.Provider, string(embedding.BackendOpenAI)) {
		config.Embedding.APIKey = keys[brain.BackendOpenAI]
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects unknown backend keys and inconsistent gateway settings
func (c *Config) Validate() error {
	if _, err := brain.ParseBackend(c.LLM.Provider); err != nil {
		return fmt.Errorf("llm.provider: %w", err)
	}
	if _, err := embedding.ParseBackend(c.Embedding.Provider); err != nil {
		return fmt.Errorf("embedding.provider: %w", err)
	}

	switch c.Storage.Driver {
	case StorageFile, StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver)
	}
	switch c.Memory.Index {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("memory.index: unsupported %q", c.Memory.Index)
	}

	policy, err := c.Safety.Policy()
	if err != nil {
		return err
	}
	if policy.QueueAt > policy.BlockAt {
		return fmt.Errorf("safety.queue_at (%s) is above safety.block_at (%s)", policy.QueueAt, policy.BlockAt)
	}

	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return errors.New("telegram.enabled requires telegram.token or TELEGRAM_TOKEN")
	}
	if c.Matrix.Enabled && (c.Matrix.Homeserver == "" || c.Matrix.UserID == "" || c.Matrix.AccessToken == "") {
		return errors.New("matrix.enabled requires homeserver, user_id and access_token")
	}
	return nil
}

// SafetyPolicy is the parsed form of SafetyConfig
type SafetyPolicy struct {
	BlockAt models.Severity
	QueueAt models.Severity
}

func (s SafetyConfig) Policy() (SafetyPolicy, error) {
	blockAt, ok := models.ParseSeverity(strings.ToLower(s.BlockAt))
	if !ok {
		return SafetyPolicy{}, fmt.Errorf("safety.block_at: unknown severity %q", s.BlockAt)
	}
	queueAt, ok := models.ParseSeverity(strings.ToLower(s.QueueAt))
	if !ok {
		return SafetyPolicy{}, fmt.Errorf("safety.queue_at: unknown severity %q", s.QueueAt)
	}
	return SafetyPolicy{BlockAt: blockAt, QueueAt: queueAt}, nil
}

// ContactList converts configured contacts for the gateway directory
func (c *Config) ContactList() []models.Contact {
	out := make([]models.Contact, 0, len(c.Contacts))
	for _, cc := range c.Contacts {
		out = append(out, models.Contact{
			Name:         cc.Name,
			Closeness:    cc.Closeness,
			Relationship: cc.Relationship,
			Rules:        cc.Rules,
			Known:        true,
		})
	}
	return out
}

func (d DatabaseConfig) Storage() storage.DatabaseConfig {
	return storage.DatabaseConfig{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		DBName:   d.DBName,
		SSLMode:  d.SSLMode,
	}
}
