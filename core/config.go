package core

import (
	"fmt"
	"log"
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
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// DocStoreConfig selects and tunes the document store backend.
	DocStoreConfig struct {
		Backend  string // memory | mongo | postgres
		MongoURI string
		MongoDB  string
		Timeout  time.Duration
	}

	CacheConfig struct {
		SignalsTTL       time.Duration // attendance, fees, exams
		NotificationsTTL time.Duration
		AnalyticsTTL     time.Duration // leaves, hostel_requests
		WarmSchedule     string        // cron spec; empty disables the warmer
	}

	StreamConfig struct {
		Interval  time.Duration
		MaxEvents int // 0: until the client disconnects
	}

	AlertConfig struct {
		Workers    int
		QueueSize  int
		MaxRetries uint64
	}

	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		DocStore DocStoreConfig
		Cache    CacheConfig
		Stream   StreamConfig
		Alert    AlertConfig
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (d DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// NewConfig reads the configuration from the environment (and `config/.env.<env>` when present).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "MiniERP")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "MiniERP <noreply@localhost>")

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("debugHost", "0.0.0.0:4000")
	v.SetDefault("shutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "minierp")
	v.SetDefault("dbUser", "minierp")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("docstoreBackend", "memory")
	v.SetDefault("mongoURI", "mongodb://localhost:27017")
	v.SetDefault("mongoDB", "minierp")
	v.SetDefault("docstoreTimeout", 5*time.Second)

	v.SetDefault("cacheSignalsTTL", 15*time.Second)
	v.SetDefault("cacheNotificationsTTL", 10*time.Second)
	v.SetDefault("cacheAnalyticsTTL", 15*time.Second)
	v.SetDefault("cacheWarmSchedule", "")

	v.SetDefault("streamInterval", 5*time.Second)
	v.SetDefault("streamMaxEvents", 120) // ~10 minutes at the default interval

	v.SetDefault("alertWorkers", 2)
	v.SetDefault("alertQueueSize", 100)
	v.SetDefault("alertMaxRetries", uint64(3))

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
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			DebugHost:          v.GetString("debugHost"),
			ShutdownTimeout:    v.GetDuration("shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetInt("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		DocStore: DocStoreConfig{
			Backend:  strings.ToLower(v.GetString("docstoreBackend")),
			MongoURI: v.GetString("mongoURI"),
			MongoDB:  v.GetString("mongoDB"),
			Timeout:  v.GetDuration("docstoreTimeout"),
		},
		Cache: CacheConfig{
			SignalsTTL:       v.GetDuration("cacheSignalsTTL"),
			NotificationsTTL: v.GetDuration("cacheNotificationsTTL"),
			AnalyticsTTL:     v.GetDuration("cacheAnalyticsTTL"),
			WarmSchedule:     v.GetString("cacheWarmSchedule"),
		},
		Stream: StreamConfig{
			Interval:  v.GetDuration("streamInterval"),
			MaxEvents: v.GetInt("streamMaxEvents"),
		},
		Alert: AlertConfig{
			Workers:    v.GetInt("alertWorkers"),
			QueueSize:  v.GetInt("alertQueueSize"),
			MaxRetries: v.GetUint64("alertMaxRetries"),
		},
	}
}
