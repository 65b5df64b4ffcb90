package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Debug                    bool          `envconfig:"debug"`
	Port                     int           `envconfig:"port" default:"8080"`
	Env                      string        `envconfig:"env" default:"dev"`
	PostgresHost             string        `envconfig:"postgres_host"`
	PostgresUser             string        `envconfig:"postgres_user"`
	PostgresDB               string        `envconfig:"postgres_db"`
	PostgresPort             int           `envconfig:"postgres_port" default:"5432"`
	PostgresPassword         string        `envconfig:"postgres_password"`
	JWTSecret                string        `envconfig:"jwt_secret"`
	AccessControlAllowOrigin string        `envconfig:"access_control_allow_origin"`
	MaxMessageLength         int           `envconfig:"max_message_length" default:"2000"`
	HistoryPageSize          int           `envconfig:"history_page_size" default:"50"`
	MaxHistoryPageSize       int           `envconfig:"max_history_page_size" default:"100"`
	SendBuffer               int           `envconfig:"send_buffer" default:"64"`
	MaxInflightStorage       int64         `envconfig:"max_inflight_storage" default:"64"`
	PongWait                 time.Duration `envconfig:"pong_wait" default:"60s"`
	WriteWait                time.Duration `envconfig:"write_wait" default:"10s"`
	ShutdownTimeout          time.Duration `envconfig:"shutdown_timeout" default:"10s"`
}

func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("collera", c)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports the first setting that would leave the chat core unusable.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("COLLERA_JWT_SECRET is required")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("COLLERA_MAX_MESSAGE_LENGTH must be greater than 0")
	}
	if c.HistoryPageSize <= 0 || c.MaxHistoryPageSize < c.HistoryPageSize {
		return fmt.Errorf("COLLERA_HISTORY_PAGE_SIZE must be positive and not exceed COLLERA_MAX_HISTORY_PAGE_SIZE")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("COLLERA_SEND_BUFFER must be greater than 0")
	}
	if c.MaxInflightStorage <= 0 {
		return fmt.Errorf("COLLERA_MAX_INFLIGHT_STORAGE must be greater than 0")
	}
	if c.PongWait <= 0 || c.WriteWait <= 0 {
		return fmt.Errorf("COLLERA_PONG_WAIT and COLLERA_WRITE_WAIT must be greater than 0")
	}
	return nil
}
