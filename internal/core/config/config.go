package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"

	"health-diary/internal/core/crypto"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
}
type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name        string
	Env         string
	HTTP        HTTP
	Admin       AdminHTTP
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type Rotate struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level  string
	JSON   bool
	Rotate Rotate
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

// Crypto PII 加密密钥；必须来自配置 / 密钥管理，不能每次启动随机生成
type Crypto struct {
	Passphrase  string       `mapstructure:"passphrase"`
	Salt        string       `mapstructure:"salt"`
	Version     int          `mapstructure:"version"`
	IndexSecret string       `mapstructure:"index_secret"`
	Retired     []crypto.Key `mapstructure:"retired"`
}

func (c Crypto) Options() crypto.Options {
	return crypto.Options{
		Passphrase:  c.Passphrase,
		Salt:        c.Salt,
		Version:     c.Version,
		IndexSecret: c.IndexSecret,
		Retired:     c.Retired,
	}
}

type Minio struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type Storage struct {
	Minio Minio `mapstructure:"minio"`
}

type Access struct {
	CacheTTLSec int `mapstructure:"cache_ttl_sec"`
}

type Admin struct {
	BootstrapEmails []string `mapstructure:"bootstrap_emails"`
}

type Config struct {
	App     App
	Log     Log
	JWT     JWT
	DB      DB
	Redis   Redis   `mapstructure:"redis"`
	Crypto  Crypto  `mapstructure:"crypto"`
	Storage Storage `mapstructure:"storage"`
	Access  Access  `mapstructure:"access"`
	Admin   Admin   `mapstructure:"admin"`
}

// 默认值；同时让 APP_* 环境变量在没有配置文件条目时也能生效
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "health-diary")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readtimeoutsec", 10)
	v.SetDefault("app.http.writetimeoutsec", 30)
	v.SetDefault("app.http.idletimeoutsec", 60)
	v.SetDefault("app.admin.host", "127.0.0.1")
	v.SetDefault("app.admin.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "health-diary")
	v.SetDefault("jwt.accesstokenttlmin", 60)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "health-diary.db")
	v.SetDefault("db.username", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.maxopenconns", 20)
	v.SetDefault("db.maxidleconns", 5)
	v.SetDefault("db.connmaxlifetimemin", 30)
	v.SetDefault("db.automigrate", true)
	v.SetDefault("db.loglevel", "warn")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("crypto.passphrase", "")
	v.SetDefault("crypto.salt", "")
	v.SetDefault("crypto.version", 1)
	v.SetDefault("crypto.index_secret", "")
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.bucket", "images")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("access.cache_ttl_sec", 30)
}

func Load(path string) *Config {
	v := viper.New()
	setDefaults(v)
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// 容器里只靠环境变量也能跑
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			log.Fatalf("read config: %v", err)
		}
		log.Printf("config file %s not found, using defaults + env", path)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		log.Fatalf("unmarshal config: %v", err)
	}
	return &c
}
