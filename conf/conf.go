package conf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type GConfig struct {
	AppCfg   *AppConfig   `mapstructure:"app"`
	LogCfg   *LogConfig   `mapstructure:"log"`
	AuthCfg  *AuthConfig  `mapstructure:"auth"`
	RedisCfg *RedisConfig `mapstructure:"redis"`
}

type AppConfig struct {
	HttpAddr string `mapstructure:"http_addr"`
	DbDriver string `mapstructure:"db_driver"`
	DbConn   string `mapstructure:"db_conn"`
	// Debug mounts pprof and the monitor page without authentication.
	Debug    bool   `mapstructure:"debug"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type AuthConfig struct {
	JwtKey      string      `mapstructure:"jwt_key"`
	JwtExp      int         `mapstructure:"jwt_exp"`
	Session     string      `mapstructure:"session"`
	MaxFails    int         `mapstructure:"max_fails"`
	LockSeconds int         `mapstructure:"lock_seconds"`
	PermitFile  string      `mapstructure:"permit_file"`
	Permits     *PermitSpec `mapstructure:"-"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthKV struct {
	Url    string `yaml:"url"`
	Permit string `yaml:"permit"`
}

// PermitSpec is the route permit table written by the anno generator.
type PermitSpec struct {
	Authentications []*AuthKV `yaml:"permits"`
	WhiteList       []string  `yaml:"white_list"`
}

var (
	ErrNoHttpAddr = errors.New("app.http_addr is required")
	ErrNoDbConn   = errors.New("app.db_conn is required")
	ErrNoJwtKey   = errors.New("auth.jwt_key is required")
)

func InitConf(confFile string, onChange func(config interface{})) (*GConfig, error) {
	v := viper.New()
	v.SetConfigFile(confFile)
	v.SetEnvPrefix("COMMUNITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	cfg, err := load(v, confFile)
	if err != nil {
		return nil, err
	}
	if onChange != nil {
		v.OnConfigChange(func(in fsnotify.Event) {
			if in.Op&fsnotify.Write == 0 {
				return
			}
			next, err := load(v, confFile)
			if err != nil {
				return
			}
			onChange(next)
		})
		v.WatchConfig()
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.db_driver", "mysql")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.filename", "logs/community.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("auth.jwt_exp", 24)
	v.SetDefault("auth.session", "memory")
	v.SetDefault("auth.max_fails", 5)
	v.SetDefault("auth.lock_seconds", 60)
	v.SetDefault("auth.permit_file", "permit.yml")
	// keys must be known to viper for AutomaticEnv to reach them on Unmarshal
	v.SetDefault("app.http_addr", "")
	v.SetDefault("app.db_conn", "")
	v.SetDefault("app.debug", false)
	v.SetDefault("auth.jwt_key", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

func load(v *viper.Viper, confFile string) (*GConfig, error) {
	cfg := &GConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.AppCfg == nil || cfg.AppCfg.HttpAddr == "" {
		return nil, ErrNoHttpAddr
	}
	if cfg.AppCfg.DbConn == "" {
		return nil, ErrNoDbConn
	}
	if cfg.AuthCfg == nil || cfg.AuthCfg.JwtKey == "" {
		return nil, ErrNoJwtKey
	}
	permitFile := cfg.AuthCfg.PermitFile
	if !filepath.IsAbs(permitFile) {
		permitFile = filepath.Join(filepath.Dir(confFile), permitFile)
	}
	permits, err := LoadPermits(permitFile)
	if err != nil {
		return nil, err
	}
	cfg.AuthCfg.Permits = permits
	return cfg, nil
}

func LoadPermits(file string) (*PermitSpec, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	spec := &PermitSpec{}
	if err = yaml.Unmarshal(raw, spec); err != nil {
		return nil, err
	}
	return spec, nil
}
