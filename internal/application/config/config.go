package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string `env:"JWT_SECRET,required"`

	TurnUDPServer webrtc.ICEServer
	TurnTCPServer webrtc.ICEServer

	CoturnServer CoturnConfig
	Postgres     PostgresConfig
	Recording    RecordingConfig
	ASR          ASRConfig
	Storage      StorageConfig
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"roomscribe"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

// CoturnConfig - TURN сервер опционален, без него фронт получает только STUN
type CoturnConfig struct {
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`

	// Secret - нужен для генерации временных кредов для фронта
	Secret string `env:"COTURN_SECRET"`
}

func (c CoturnConfig) Enabled() bool {
	return c.Host != ""
}

// RecordingConfig ограничения сессии записи
type RecordingConfig struct {
	MaxBufferBytes  int64         `env:"RECORDING_MAX_BUFFER_BYTES" envDefault:"524288000"`
	MaxDuration     time.Duration `env:"RECORDING_MAX_DURATION" envDefault:"4h"`
	CheckpointEvery int           `env:"RECORDING_CHECKPOINT_EVERY" envDefault:"10"`
	GracePeriod     time.Duration `env:"RECORDING_GRACE_PERIOD" envDefault:"2s"`
	UploadAttempts  uint64        `env:"RECORDING_UPLOAD_ATTEMPTS" envDefault:"3"`
	UploadBackoff   time.Duration `env:"RECORDING_UPLOAD_BACKOFF" envDefault:"500ms"`
	// FailedUploadTTL - сколько слитая запись с неудачной загрузкой ждет ручного повтора
	FailedUploadTTL time.Duration `env:"RECORDING_FAILED_UPLOAD_TTL" envDefault:"1h"`
}

// ASRConfig статическая конфигурация потокового распознавания, одна на деплой
type ASRConfig struct {
	Enabled          bool          `env:"ASR_ENABLED" envDefault:"true"`
	URL              string        `env:"ASR_URL" envDefault:"wss://api.deepgram.com/v1/listen"`
	APIKey           string        `env:"ASR_API_KEY"`
	Model            string        `env:"ASR_MODEL" envDefault:"nova-2"`
	Language         string        `env:"ASR_LANGUAGE" envDefault:"en"`
	Encoding         string        `env:"ASR_ENCODING"`
	SampleRate       int           `env:"ASR_SAMPLE_RATE"`
	HandshakeTimeout time.Duration `env:"ASR_HANDSHAKE_TIMEOUT" envDefault:"10s"`
}

type StorageConfig struct {
	Dir           string `env:"STORAGE_DIR" envDefault:"./uploads"`
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"http://localhost:3000/uploads"`
	Subdir        string `env:"STORAGE_SUBDIR" envDefault:"recordings"`
}

func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err = c.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if c.CoturnServer.Enabled() {
		c.TurnUDPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}

		c.TurnTCPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}
	}

	return &c, nil
}

func (c *Config) validate() error {
	r := c.Recording

	switch {
	case r.MaxBufferBytes <= 0:
		return errors.New("RECORDING_MAX_BUFFER_BYTES must be positive")
	case r.MaxDuration <= 0:
		return errors.New("RECORDING_MAX_DURATION must be positive")
	case r.CheckpointEvery <= 0:
		return errors.New("RECORDING_CHECKPOINT_EVERY must be positive")
	case r.GracePeriod < 0 || r.GracePeriod > 30*time.Second:
		return errors.New("RECORDING_GRACE_PERIOD must be between 0 and 30s")
	case r.UploadAttempts == 0:
		return errors.New("RECORDING_UPLOAD_ATTEMPTS must be at least 1")
	case r.UploadBackoff <= 0:
		return errors.New("RECORDING_UPLOAD_BACKOFF must be positive")
	case r.FailedUploadTTL <= 0:
		return errors.New("RECORDING_FAILED_UPLOAD_TTL must be positive")
	}

	if c.ASR.Enabled && c.ASR.APIKey == "" {
		return errors.New("ASR_API_KEY is required when ASR_ENABLED is true")
	}

	return nil
}
