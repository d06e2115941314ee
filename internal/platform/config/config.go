package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AuthSecretEnv はゲートウェイ認証用シークレットを上書きする環境変数です。
const AuthSecretEnv = "STAFFBOT_AUTH_SECRET"

const (
	StorageDriverJSON     = "json"
	StorageDriverPostgres = "postgres"

	defaultHTTPListenAddr = ":8080"
	defaultStoragePath    = "data/employees.json"
	defaultKafkaTopic     = "staffbot.notices"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Policy   PolicyConfig   `yaml:"policy"`
}

// ServerConfig は gRPC サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// AuthSecret はゲートウェイが発行する HS256 トークンの検証鍵です。
	AuthSecret string `yaml:"auth_secret"`
}

// HTTPConfig は死活監視とメトリクス用 HTTP サーバーの設定です。
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig はロガーの設定です。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig は名簿の保存先の設定です。
type StorageConfig struct {
	Driver         string `yaml:"driver"`
	Path           string `yaml:"path"`
	MaxFieldLength int    `yaml:"max_field_length"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。storage.driver が postgres の場合のみ必須です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// RedisConfig はクールダウン共有用 Redis の設定です。Addr が空の場合はプロセス内で管理します。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled は Redis を利用するかを返します。
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// KafkaConfig は DM 通知の配送先 Kafka の設定です。Brokers が空の場合はログへ出力します。
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

// Enabled は Kafka を利用するかを返します。
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// PolicyConfig は権限とクールダウンの設定です。
type PolicyConfig struct {
	AllowedRoleIDs     []string                 `yaml:"allowed_role_ids"`
	DismissRoleIDs     []string                 `yaml:"dismiss_role_ids"`
	MaxWarnings        int                      `yaml:"max_warnings"`
	DefaultCooldown    time.Duration            `yaml:"-"`
	Cooldowns          map[string]time.Duration `yaml:"-"`
	DefaultCooldownRaw string                   `yaml:"default_cooldown"`
	CooldownsRaw       map[string]string        `yaml:"cooldowns"`
}

// Load は指定されたパスから設定ファイルを読み込みます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}
	return Parse(b)
}

// Parse は YAML を解釈し、環境変数による上書きと検証を行います。
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if secret := os.Getenv(AuthSecretEnv); secret != "" {
		cfg.Server.AuthSecret = secret
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}
	if c.Server.AuthSecret == "" {
		return fmt.Errorf("config: server.auth_secret or %s must be set", AuthSecretEnv)
	}
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = defaultHTTPListenAddr
	}

	if err := c.Log.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Storage.validateAndNormalize(); err != nil {
		return err
	}
	if c.Storage.Driver == StorageDriverPostgres {
		if err := c.Database.validateAndNormalize(); err != nil {
			return err
		}
	}
	if c.Redis.Enabled() {
		if _, _, err := net.SplitHostPort(c.Redis.Addr); err != nil {
			return fmt.Errorf("config: redis.addr: %w", err)
		}
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		c.Kafka.Topic = defaultKafkaTopic
	}
	if c.Kafka.Partitions <= 0 {
		c.Kafka.Partitions = 1
	}
	if c.Kafka.ReplicationFactor <= 0 {
		c.Kafka.ReplicationFactor = 1
	}

	return c.Policy.validateAndNormalize()
}

func (l *LogConfig) validateAndNormalize() error {
	l.Level = strings.ToLower(l.Level)
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Format {
	case "":
		l.Format = "json"
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format must be json or console, got %q", l.Format)
	}
	return nil
}

func (s *StorageConfig) validateAndNormalize() error {
	switch s.Driver {
	case "":
		s.Driver = StorageDriverJSON
	case StorageDriverJSON, StorageDriverPostgres:
	default:
		return fmt.Errorf("config: storage.driver must be %s or %s, got %q", StorageDriverJSON, StorageDriverPostgres, s.Driver)
	}
	if s.Driver == StorageDriverJSON && s.Path == "" {
		s.Path = defaultStoragePath
	}
	if s.MaxFieldLength < 0 {
		return fmt.Errorf("config: storage.max_field_length must not be negative")
	}
	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (p *PolicyConfig) validateAndNormalize() error {
	if p.MaxWarnings < 0 {
		return fmt.Errorf("config: policy.max_warnings must not be negative")
	}

	d, err := parseDurationAllowEmpty(p.DefaultCooldownRaw)
	if err != nil {
		return fmt.Errorf("config: policy.default_cooldown: %w", err)
	}
	p.DefaultCooldown = d

	p.Cooldowns = make(map[string]time.Duration, len(p.CooldownsRaw))
	for command, raw := range p.CooldownsRaw {
		d, err := parseDurationAllowEmpty(raw)
		if err != nil {
			return fmt.Errorf("config: policy.cooldowns.%s: %w", command, err)
		}
		p.Cooldowns[strings.ToLower(command)] = d
	}
	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative: %s", raw)
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
