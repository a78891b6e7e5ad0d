package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g. FACEBOT_DB_HOST.
const EnvPrefix = "FACEBOT"

// Leaf fields carry split_words, never envconfig name tags: envconfig also reads
// a name tag without the FACEBOT prefix.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database" envconfig:"DB"`
	Table    TableConfig    `yaml:"table"`
	Queue    QueueConfig    `yaml:"queue"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Bot      BotConfig      `yaml:"bot"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOG"`
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	MetricsPort   int    `yaml:"metrics_port" split_words:"true"`
	APIKey        string `yaml:"api_key" split_words:"true"`
	WebhookSecret string `yaml:"webhook_secret" split_words:"true"`
}

type DatabaseConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"ssl_mode" split_words:"true"`
	MaxConns       int           `yaml:"max_conns" split_words:"true"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" split_words:"true"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// TableConfig names the face table and its columns.
type TableConfig struct {
	Name             string `yaml:"name"`
	PKColumn         string `yaml:"pk_column" split_words:"true"`
	FaceIDColumn     string `yaml:"face_id_column" split_words:"true"`
	OriginalIDColumn string `yaml:"original_id_column" split_words:"true"`
	PersonNameColumn string `yaml:"person_name_column" split_words:"true"`
}

type QueueConfig struct {
	Driver       string   `yaml:"driver"` // nats, kafka
	NATSURL      string   `yaml:"nats_url" split_words:"true"`
	KafkaBrokers []string `yaml:"kafka_brokers" split_words:"true"`
	Name         string   `yaml:"name"`
	EventsName   string   `yaml:"events_name" split_words:"true"`
	BatchSize    int      `yaml:"batch_size" split_words:"true"`
}

type MinIOConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key" split_words:"true"`
	SecretKey    string `yaml:"secret_key" split_words:"true"`
	Region       string `yaml:"region"`
	UseSSL       bool   `yaml:"use_ssl" split_words:"true"`
	PhotosBucket string `yaml:"photos_bucket" split_words:"true"`
	FacesBucket  string `yaml:"faces_bucket" split_words:"true"`
}

type VisionConfig struct {
	Provider      string        `yaml:"provider"` // yandex, rekognition
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key" split_words:"true"`
	FolderID      string        `yaml:"folder_id" split_words:"true"`
	AWSRegion     string        `yaml:"aws_region" split_words:"true"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxPhotoBytes int           `yaml:"max_photo_bytes" split_words:"true"`
}

type BotConfig struct {
	Token      string   `yaml:"token"`
	Name       string   `yaml:"name"`
	APIURL     string   `yaml:"api_url" split_words:"true"`
	GatewayURL string   `yaml:"gateway_url" split_words:"true"`
	Messages   Messages `yaml:"messages" ignored:"true"`
}

// Messages holds every reply text the bot sends.
type Messages struct {
	AllIdentified string `yaml:"all_identified"`
	WhoIsThis     string `yaml:"who_is_this"`
	FindUsage     string `yaml:"find_usage"`
	NotFound      string `yaml:"not_found"` // fmt verb %s receives the name
	LabelError    string `yaml:"label_error"`
	LabelSaved    string `yaml:"label_saved"`
	Unknown       string `yaml:"unknown"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A missing file is not an error: functions deployed without one are configured
// entirely from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8081
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 5 * time.Second
	}
	if cfg.Table.Name == "" {
		cfg.Table.Name = "faces"
	}
	if cfg.Table.PKColumn == "" {
		cfg.Table.PKColumn = "row_id"
	}
	if cfg.Table.FaceIDColumn == "" {
		cfg.Table.FaceIDColumn = "face_id"
	}
	if cfg.Table.OriginalIDColumn == "" {
		cfg.Table.OriginalIDColumn = "original_photo_id"
	}
	if cfg.Table.PersonNameColumn == "" {
		cfg.Table.PersonNameColumn = "person_name"
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = "nats"
	}
	if cfg.Queue.NATSURL == "" {
		cfg.Queue.NATSURL = "nats://localhost:4222"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "face-tasks"
	}
	if cfg.Queue.EventsName == "" {
		cfg.Queue.EventsName = "face-events"
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.MinIO.PhotosBucket == "" {
		cfg.MinIO.PhotosBucket = "photos"
	}
	if cfg.MinIO.FacesBucket == "" {
		cfg.MinIO.FacesBucket = "faces"
	}
	if cfg.Vision.Provider == "" {
		cfg.Vision.Provider = "yandex"
	}
	if cfg.Vision.Endpoint == "" {
		cfg.Vision.Endpoint = "https://vision.api.cloud.yandex.net/vision/v1/batchAnalyze"
	}
	if cfg.Vision.Timeout == 0 {
		cfg.Vision.Timeout = 30 * time.Second
	}
	if cfg.Vision.MaxPhotoBytes == 0 {
		cfg.Vision.MaxPhotoBytes = 1 << 20
	}
	if cfg.Bot.APIURL == "" {
		cfg.Bot.APIURL = "https://api.telegram.org"
	}
	cfg.Bot.GatewayURL = strings.TrimRight(cfg.Bot.GatewayURL, "/")
	setMessageDefaults(&cfg.Bot.Messages)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func setMessageDefaults(m *Messages) {
	if m.AllIdentified == "" {
		m.AllIdentified = "All photos are already identified :)"
	}
	if m.WhoIsThis == "" {
		m.WhoIsThis = "Who is in this photo?"
	}
	if m.FindUsage == "" {
		m.FindUsage = "Invalid command. Usage: /find {name}"
	}
	if m.NotFound == "" {
		m.NotFound = "No photos found for %s"
	}
	if m.LabelError == "" {
		m.LabelError = "Something went wrong while saving the name"
	}
	if m.LabelSaved == "" {
		m.LabelSaved = "Thanks! The data has been updated"
	}
	if m.Unknown == "" {
		m.Unknown = "Error"
	}
}

// ValidateBot checks the settings the bot webhook cannot run without.
func (c *Config) ValidateBot() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	if c.Bot.Name == "" {
		return errors.New("bot.name is required")
	}
	return nil
}

// ValidateVision checks the settings of the selected detection provider.
func (c *Config) ValidateVision() error {
	switch c.Vision.Provider {
	case "yandex":
		if c.Vision.APIKey == "" {
			return errors.New("vision.api_key is required for the yandex provider")
		}
	case "rekognition":
		if c.Vision.AWSRegion == "" {
			return errors.New("vision.aws_region is required for the rekognition provider")
		}
	default:
		return fmt.Errorf("unknown vision provider %q", c.Vision.Provider)
	}
	return nil
}
