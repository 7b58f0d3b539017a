package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// PostgresConfig defines the connection to one market_history store.
type PostgresConfig struct {
	Name     string `mapstructure:"name"` // label used in logs, reports and dump file names
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	// SSM parameter names resolved when env is "prod". Empty keeps the
	// plain value above.
	SSMHost     string `mapstructure:"ssm_host"`
	SSMUser     string `mapstructure:"ssm_user"`
	SSMPassword string `mapstructure:"ssm_password"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// parameterStore resolves an SSM parameter; replaced in tests.
var parameterStore = getParameterStoreValue

// DSN builds a libpq key/value connection string. In prod, host, user and
// password are read from SSM when the matching parameter name is set.
func (cfg *PostgresConfig) DSN(env string) string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		host = fromParameterStore(cfg.SSMHost, host)
		user = fromParameterStore(cfg.SSMUser, user)
		password = fromParameterStore(cfg.SSMPassword, password)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, cfg.DBName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}

func fromParameterStore(name, fallback string) string {
	if name == "" {
		return fallback
	}
	if v := parameterStore(name, true); v != "" {
		return v
	}
	return fallback
}

func getParameterStoreValue(parameterName string, decrypt bool) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return ""
	}

	result, err := ssm.NewFromConfig(cfg).GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	})
	if err != nil || result.Parameter == nil || result.Parameter.Value == nil {
		return ""
	}

	return *result.Parameter.Value
}
