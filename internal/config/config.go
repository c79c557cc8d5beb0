package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/lamstech/quickcards/pkg/logger"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every environment-driven setting. Only this struct is used
// to carry configuration values; no direct access to env, ini or any other
// config source should be made elsewhere.
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"quickcards"`
	AppDebug            bool   `env:"APP_DEBUG" default:"1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`
	AppBaseUrl          string `env:"APP_BASE_URL"`

	HttpListenAddr            string `env:"HTTP_LISTEN_ADDR" validation:"mustExists"`
	HttpBaseRequestUrl        string `env:"HTTP_BASE_REQUEST_URI" validation:"mustExists"`
	HttpServerReadTimeout     int    `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout    int    `env:"HTTP_SERVER_WRITE_TIMEOUT"`
	HttpServerReadBufferSize  int    `env:"HTTP_SERVER_READ_BUFFER_SIZE"`
	HttpServerWriteBufferSize int    `env:"HTTP_SERVER_WRITE_BUFFER_SIZE"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	ProfilerEnable bool `env:"PROFILER_ENABLE"`
	ProfilerPort   int  `env:"PROFILER_PORT"`

	LogLevel []string `env:"LOG_LEVEL"`

	CatalogPath string `env:"CATALOG_PATH" default:"./catalog.json"`

	MomoBaseURL string        `env:"MOMO_BASE_URL"`
	MomoAPIKey  string        `env:"MOMO_API_KEY"`
	MomoTimeout time.Duration `env:"MOMO_TIMEOUT" default:"10s"`
	// MomoUseFake swaps the aggregator for the in-process fake. Dev only.
	MomoUseFake bool `env:"MOMO_USE_FAKE"`

	PaymentWindow       time.Duration `env:"PAYMENT_WINDOW" default:"5m"`
	PaymentPollInterval time.Duration `env:"PAYMENT_POLL_INTERVAL" default:"2s"`
	PaymentPollTimeout  time.Duration `env:"PAYMENT_POLL_TIMEOUT" default:"90s"`
	ReferenceTTL        time.Duration `env:"REFERENCE_TTL" default:"8760h"`

	SMSBaseURL string `env:"SMS_BASE_URL"`
	// SMSBackupURL enables multi-provider delivery with failover when set.
	SMSBackupURL string `env:"SMS_BACKUP_URL"`
	SMSAPIKey    string `env:"SMS_API_KEY"`
	SMSSenderID  string `env:"SMS_SENDER_ID" default:"QuickCards"`

	ReceiptBaseURL string `env:"RECEIPT_BASE_URL"`
	ReceiptAPIKey  string `env:"RECEIPT_API_KEY"`

	QueueName              string        `env:"QUEUE_NAME" default:"quickcards:sms:retry"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ"`

	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" default:"1m"`
	SweepStaleClaimAge time.Duration `env:"SWEEP_STALE_CLAIM_AGE" default:"15m"`
	SweepBatchSize     int           `env:"SWEEP_BATCH_SIZE" default:"100"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
