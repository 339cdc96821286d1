package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine       string
		Host         string
		Port         string
		Name         string
		User         string
		Password     string
		DisableTLS   bool
		MaxOpenConns int
		MaxIdleConns int
	}

	RedisConfig struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		Prefix   string
		TTL      time.Duration
		Timeout  time.Duration
	}

	BillingConfig struct {
		Timezone      string
		StrictDueDay  bool
		UpcomingDays  int
		UpcomingLimit int
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		RollbarToken     string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		FrontendBaseURL  string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Billing  BillingConfig
	}
)

// Address returns the "host:port" of the database server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Location loads the billing time zone. "today" is always evaluated in it.
func (c BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewConfig loads the configuration from the environment (and config/.env.<env> if it exists).
// Every key is read with the ENV prefix, e.g. DEV_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Backoffice")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "w6!q2m-9s+zx4&h$pu0b7c(e)1r#vfyt8ka3jd5lng")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("defaultFromName", "Backoffice")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_debugHost", ":4000")
	v.SetDefault("server_shutdownTimeout", 5*time.Second)
	v.SetDefault("server_disableReqLogs", false)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "backoffice")
	v.SetDefault("database_user", "postgres")
	v.SetDefault("database_password", "")
	v.SetDefault("database_disableTLS", true)
	v.SetDefault("database_maxOpenConns", 10)
	v.SetDefault("database_maxIdleConns", 5)

	v.SetDefault("redis_enabled", false)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_prefix", "backoffice_")
	v.SetDefault("redis_ttl", 10*time.Minute)
	v.SetDefault("redis_timeout", 3*time.Second)

	v.SetDefault("billing_timezone", "America/Sao_Paulo")
	v.SetDefault("billing_strictDueDay", false)
	v.SetDefault("billing_upcomingDays", 5)
	v.SetDefault("billing_upcomingLimit", 5)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("defaultFromName"),
			Address: v.GetString("defaultFromEmail"),
		},
		SendgridApiKey:  v.GetString("sendgridApiKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		Server: ServerConfig{
			Host:            v.GetString("server_host"),
			Address:         v.GetString("server_address"),
			DebugHost:       v.GetString("server_debugHost"),
			ShutdownTimeout: v.GetDuration("server_shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server_disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:       v.GetString("database_engine"),
			Host:         v.GetString("database_host"),
			Port:         v.GetString("database_port"),
			Name:         v.GetString("database_name"),
			User:         v.GetString("database_user"),
			Password:     v.GetString("database_password"),
			DisableTLS:   v.GetBool("database_disableTLS"),
			MaxOpenConns: v.GetInt("database_maxOpenConns"),
			MaxIdleConns: v.GetInt("database_maxIdleConns"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis_enabled"),
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
			Prefix:   v.GetString("redis_prefix"),
			TTL:      v.GetDuration("redis_ttl"),
			Timeout:  v.GetDuration("redis_timeout"),
		},
		Billing: BillingConfig{
			Timezone:      v.GetString("billing_timezone"),
			StrictDueDay:  v.GetBool("billing_strictDueDay"),
			UpcomingDays:  v.GetInt("billing_upcomingDays"),
			UpcomingLimit: v.GetInt("billing_upcomingLimit"),
		},
	}
}
