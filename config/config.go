// Package config 加载服务配置。优先级：环境变量 > 配置文件 > 默认值。
//
// 环境变量以 RECSERVE_ 为前缀，双下划线表示层级：
//
//	RECSERVE_CACHE__BACKEND=redis
//	RECSERVE_CACHE__REDIS__ADDRS=10.0.0.1:6379,10.0.0.2:6379
//	RECSERVE_MODEL__DIR=/srv/model_artifacts
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/model"
	"github.com/rushteam/recserve/pkg/logging"
	"github.com/rushteam/recserve/store"
)

// EnvPrefix 是环境变量前缀
const EnvPrefix = "RECSERVE_"

type Config struct {
	Server  ServerConfig   `koanf:"server" yaml:"server"`
	Model   ModelConfig    `koanf:"model" yaml:"model"`
	Cache   CacheConfig    `koanf:"cache" yaml:"cache"`
	Ranking RankingConfig  `koanf:"ranking" yaml:"ranking"`
	Log     logging.Config `koanf:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
	// Admin 控制是否暴露 /admin/reload
	Admin bool `koanf:"admin" yaml:"admin"`
}

// ModelConfig 描述模型产物来源
type ModelConfig struct {
	Source   string        `koanf:"source" yaml:"source" validate:"oneof=dir s3"`
	Dir      string        `koanf:"dir" yaml:"dir" validate:"required_if=Source dir"`
	S3       S3Config      `koanf:"s3" yaml:"s3"`
	Watch    bool          `koanf:"watch" yaml:"watch"`
	Debounce time.Duration `koanf:"debounce" yaml:"debounce" validate:"gte=0"`
}

type S3Config struct {
	Bucket    string `koanf:"bucket" yaml:"bucket"`
	Prefix    string `koanf:"prefix" yaml:"prefix"`
	Region    string `koanf:"region" yaml:"region"`
	Endpoint  string `koanf:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	AccessKey string `koanf:"access_key" yaml:"access_key"`
	SecretKey string `koanf:"secret_key" yaml:"secret_key"`
}

// CacheConfig 描述结果缓存。Backend 取值见 SupportedStores。
type CacheConfig struct {
	Backend    string        `koanf:"backend" yaml:"backend" validate:"required"`
	Timeout    time.Duration `koanf:"timeout" yaml:"timeout" validate:"gte=0"`
	UserTTL    time.Duration `koanf:"user_ttl" yaml:"user_ttl" validate:"gte=0"`
	SimilarTTL time.Duration `koanf:"similar_ttl" yaml:"similar_ttl" validate:"gte=0"`
	PopularTTL time.Duration `koanf:"popular_ttl" yaml:"popular_ttl" validate:"gte=0"`
	// NearTTL 是 tiered 模式下进程内一级缓存的过期上限
	NearTTL time.Duration `koanf:"near_ttl" yaml:"near_ttl" validate:"gte=0"`

	Redis   RedisConfig   `koanf:"redis" yaml:"redis"`
	Breaker BreakerConfig `koanf:"breaker" yaml:"breaker"`
}

type RedisConfig struct {
	Addrs        []string      `koanf:"addrs" yaml:"addrs" validate:"dive,hostname_port"`
	DB           int           `koanf:"db" yaml:"db" validate:"gte=0"`
	Password     string        `koanf:"password" yaml:"password"`
	Namespace    string        `koanf:"namespace" yaml:"namespace"`
	DialTimeout  time.Duration `koanf:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	PoolSize     int           `koanf:"pool_size" yaml:"pool_size" validate:"gte=0"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold" yaml:"failure_threshold"`
	MaxRequests      uint32        `koanf:"max_requests" yaml:"max_requests"`
	Interval         time.Duration `koanf:"interval" yaml:"interval"`
	Timeout          time.Duration `koanf:"timeout" yaml:"timeout"`
}

// RankingConfig 是请求级策略
type RankingConfig struct {
	DefaultN          int           `koanf:"default_n" yaml:"default_n" validate:"gte=1"`
	MaxBatch          int           `koanf:"max_batch" yaml:"max_batch" validate:"gte=1"`
	BatchConcurrency  int           `koanf:"batch_concurrency" yaml:"batch_concurrency" validate:"gte=1"`
	Eligibility       string        `koanf:"eligibility" yaml:"eligibility"`
	DegradedErrorRate float64       `koanf:"degraded_error_rate" yaml:"degraded_error_rate" validate:"gt=0,lte=1"`
	HealthWindow      time.Duration `koanf:"health_window" yaml:"health_window" validate:"gt=0"`
}

func Default() *Config {
	rc := cache.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Admin:           true,
		},
		Model: ModelConfig{
			Source:   "dir",
			Dir:      "./model_artifacts",
			Watch:    true,
			Debounce: 500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			Timeout:    rc.Timeout,
			UserTTL:    rc.UserTTL,
			SimilarTTL: rc.SimilarTTL,
			PopularTTL: rc.PopularTTL,
			NearTTL:    time.Minute,
			Redis: RedisConfig{
				Addrs:        []string{"localhost:6379"},
				Namespace:    "recserve",
				DialTimeout:  time.Second,
				ReadTimeout:  rc.Timeout,
				WriteTimeout: rc.Timeout,
			},
			Breaker: BreakerConfig{
				FailureThreshold: rc.Breaker.FailureThreshold,
				MaxRequests:      rc.Breaker.MaxRequests,
				Interval:         rc.Breaker.Interval,
				Timeout:          rc.Breaker.Timeout,
			},
		},
		Ranking: RankingConfig{
			DefaultN:          10,
			MaxBatch:          100,
			BatchConcurrency:  8,
			DegradedErrorRate: 0.01,
			HealthWindow:      5 * time.Minute,
		},
		Log: logging.DefaultConfig(),
	}
}

// 环境变量里以逗号分隔的列表项
var sliceKeys = []string{"cache.redis.addrs"}

// Load 依次叠加默认值、path 指向的 YAML 文件（为空则跳过）与环境变量，并校验结果。
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	for _, key := range sliceKeys {
		if s, ok := k.Get(key).(string); ok {
			if err := k.Set(key, splitList(s)); err != nil {
				return nil, fmt.Errorf("split %s: %w", key, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey: RECSERVE_CACHE__REDIS__ADDRS → cache.redis.addrs
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 做字段级与跨字段校验，返回所有问题而不只是第一个。
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	if !HasStore(c.Cache.Backend) {
		errs = append(errs, fmt.Errorf("Config.Cache.Backend: unknown backend %q, supported: %v", c.Cache.Backend, SupportedStores()))
	}
	if c.Model.Source == "s3" && c.Model.S3.Bucket == "" {
		errs = append(errs, errors.New("Config.Model.S3.Bucket: required when model.source is s3"))
	}
	if c.Model.Watch && c.Model.Source != "dir" {
		errs = append(errs, errors.New("Config.Model.Watch: only supported for model.source dir"))
	}
	if usesRedis(c.Cache.Backend) && len(c.Cache.Redis.Addrs) == 0 {
		errs = append(errs, errors.New("Config.Cache.Redis.Addrs: required for redis backends"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func usesRedis(backend string) bool {
	return backend == "redis" || backend == "tiered"
}

// Dump 以 YAML 输出生效配置，密钥字段打码。
func (c *Config) Dump() ([]byte, error) {
	cp := *c
	cp.Cache.Redis.Addrs = append([]string(nil), c.Cache.Redis.Addrs...)
	cp.Cache.Redis.Password = redact(cp.Cache.Redis.Password)
	cp.Model.S3.AccessKey = redact(cp.Model.S3.AccessKey)
	cp.Model.S3.SecretKey = redact(cp.Model.S3.SecretKey)
	return yamlv3.Marshal(&cp)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "******"
}

// ResultCache 转换为结果缓存策略
func (c CacheConfig) ResultCache() cache.Config {
	return cache.Config{
		Timeout:    c.Timeout,
		UserTTL:    c.UserTTL,
		SimilarTTL: c.SimilarTTL,
		PopularTTL: c.PopularTTL,
		Breaker: cache.BreakerConfig{
			FailureThreshold: c.Breaker.FailureThreshold,
			MaxRequests:      c.Breaker.MaxRequests,
			Interval:         c.Breaker.Interval,
			Timeout:          c.Breaker.Timeout,
		},
	}
}

func (c RedisConfig) Options() store.RedisOptions {
	return store.RedisOptions{
		Addrs:        c.Addrs,
		DB:           c.DB,
		Password:     c.Password,
		Namespace:    c.Namespace,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
	}
}

// Open 按配置打开模型产物来源
func (c ModelConfig) Open(ctx context.Context) (model.Source, error) {
	switch c.Source {
	case "s3":
		return model.NewS3Source(ctx, model.S3Config{
			Bucket:    c.S3.Bucket,
			Prefix:    c.S3.Prefix,
			Region:    c.S3.Region,
			Endpoint:  c.S3.Endpoint,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
		})
	case "dir", "":
		return model.NewDirSource(c.Dir), nil
	}
	return nil, fmt.Errorf("unknown model source %q", c.Source)
}
