package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CBT      CBTConfig      `mapstructure:"cbt"`
}

type CBTConfig struct {
	// PassRule is an expression over {score, total, percent} deciding
	// whether an attempt passes, e.g. "percent >= 70".
	PassRule      string `mapstructure:"pass_rule"`
	QuestionCount int    `mapstructure:"question_count"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	PublicURL string `mapstructure:"public_url"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	PasswordSalt      string `mapstructure:"password_salt"`
	CookieName        string `mapstructure:"cookie_name"`
	SessionTTLMinutes int    `mapstructure:"session_ttl_minutes"`
}

// ConnString returns the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// Validate enforces the startup contract: the process must not serve without
// a token signing secret and a password salt.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.PasswordSalt == "" {
		return errors.New("auth.password_salt is required")
	}
	if c.Auth.CookieName == "" {
		return errors.New("auth.cookie_name is required")
	}
	return nil
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.public_url", "http://localhost:8080")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("auth.cookie_name", "onboard_session")
	viper.SetDefault("auth.session_ttl_minutes", 60)
	viper.SetDefault("cbt.pass_rule", "percent >= 70")
	viper.SetDefault("cbt.question_count", 20)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
