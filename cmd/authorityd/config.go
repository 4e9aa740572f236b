package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	storageMemory = "memory"
	storageRedis  = "redis"
	storageMongo  = "mongodb"
)

type Config struct {
	Issuer     string `mapstructure:"issuer"`
	Address    string `mapstructure:"address"`
	PathPrefix string `mapstructure:"path_prefix"`
	// ClientSecretKey is the master key client secrets are sealed with.
	ClientSecretKey string `mapstructure:"client_secret_key"`
	// SigningKeysFile is a private JWK Set. A key is generated when empty.
	SigningKeysFile string   `mapstructure:"signing_keys_file"`
	KeyLifetimeSecs int      `mapstructure:"key_lifetime_secs"`
	Scopes          []string `mapstructure:"scopes"`

	Storage  StorageConfig  `mapstructure:"storage"`
	Tokens   TokensConfig   `mapstructure:"tokens"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Device   DeviceConfig   `mapstructure:"device"`
	CIBA     CIBAConfig     `mapstructure:"ciba"`
	UMA      UMAConfig      `mapstructure:"uma"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Type    string        `mapstructure:"type"`
	Timeout time.Duration `mapstructure:"timeout"`
	// ConnectAttempts bounds the connection attempts at start up.
	ConnectAttempts int         `mapstructure:"connect_attempts"`
	Redis           RedisConfig `mapstructure:"redis"`
	Mongo           MongoConfig `mapstructure:"mongodb"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type TokensConfig struct {
	AuthorizationCodeLifetimeSecs int  `mapstructure:"authorization_code_lifetime_secs"`
	AccessTokenLifetimeSecs       int  `mapstructure:"access_token_lifetime_secs"`
	RefreshTokenLifetimeSecs      int  `mapstructure:"refresh_token_lifetime_secs"`
	IDTokenLifetimeSecs           int  `mapstructure:"id_token_lifetime_secs"`
	JWTAccessTokens               bool `mapstructure:"jwt_access_tokens"`
	RefreshTokenRotation          bool `mapstructure:"refresh_token_rotation"`
	RevocationCascade             bool `mapstructure:"revocation_cascade"`
	Implicit                      bool `mapstructure:"implicit"`
	PKCERequired                  bool `mapstructure:"pkce_required"`
}

type SessionsConfig struct {
	IdleLifetimeSecs            int `mapstructure:"idle_lifetime_secs"`
	MaxLifetimeSecs             int `mapstructure:"max_lifetime_secs"`
	UnauthenticatedLifetimeSecs int `mapstructure:"unauthenticated_lifetime_secs"`
}

type DeviceConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	VerificationURI  string `mapstructure:"verification_uri"`
	LifetimeSecs     int    `mapstructure:"lifetime_secs"`
	PollIntervalSecs int    `mapstructure:"poll_interval_secs"`
}

type CIBAConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	LifetimeSecs     int  `mapstructure:"lifetime_secs"`
	PollIntervalSecs int  `mapstructure:"poll_interval_secs"`
}

type UMAConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	JWTRPT               bool `mapstructure:"jwt_rpt"`
	TicketLifetimeSecs   int  `mapstructure:"ticket_lifetime_secs"`
	RPTLifetimeSecs      int  `mapstructure:"rpt_lifetime_secs"`
	PCTLifetimeSecs      int  `mapstructure:"pct_lifetime_secs"`
	ResourceLifetimeSecs int  `mapstructure:"resource_lifetime_secs"`
}

type SweeperConfig struct {
	IntervalSecs int `mapstructure:"interval_secs"`
	BatchSize    int `mapstructure:"batch_size"`
}

// setDefaults registers every key so environment variables are picked up
// when unmarshaling.
func setDefaults(v *viper.Viper) {
	v.SetDefault("issuer", "")
	v.SetDefault("address", ":8080")
	v.SetDefault("path_prefix", "")
	v.SetDefault("client_secret_key", "")
	v.SetDefault("signing_keys_file", "")
	v.SetDefault("key_lifetime_secs", 0)
	v.SetDefault("scopes", []string{})
	v.SetDefault("shutdown_timeout", 15*time.Second)

	v.SetDefault("storage.type", storageMemory)
	v.SetDefault("storage.timeout", 5*time.Second)
	v.SetDefault("storage.connect_attempts", 5)
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.username", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "")
	v.SetDefault("storage.mongodb.uri", "")
	v.SetDefault("storage.mongodb.database", "authority")

	for _, key := range []string{
		"tokens.authorization_code_lifetime_secs", "tokens.access_token_lifetime_secs",
		"tokens.refresh_token_lifetime_secs", "tokens.id_token_lifetime_secs",
		"sessions.idle_lifetime_secs", "sessions.max_lifetime_secs", "sessions.unauthenticated_lifetime_secs",
		"device.lifetime_secs", "device.poll_interval_secs",
		"ciba.lifetime_secs", "ciba.poll_interval_secs",
		"uma.ticket_lifetime_secs", "uma.rpt_lifetime_secs", "uma.pct_lifetime_secs", "uma.resource_lifetime_secs",
		"sweeper.interval_secs", "sweeper.batch_size",
	} {
		v.SetDefault(key, 0)
	}
	for _, key := range []string{
		"tokens.jwt_access_tokens", "tokens.refresh_token_rotation", "tokens.revocation_cascade",
		"tokens.implicit", "tokens.pkce_required",
		"device.enabled", "ciba.enabled", "uma.enabled", "uma.jwt_rpt",
	} {
		v.SetDefault(key, false)
	}
	v.SetDefault("device.verification_uri", "")
}

func loadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse the configuration: %w", err)
	}

	if cfg.Issuer == "" {
		return Config{}, errors.New("issuer is required")
	}

	switch cfg.Storage.Type {
	case storageMemory:
	case storageRedis:
		if cfg.Storage.Redis.Addr == "" {
			return Config{}, errors.New("storage.redis.addr is required")
		}
	case storageMongo:
		if cfg.Storage.Mongo.URI == "" {
			return Config{}, errors.New("storage.mongodb.uri is required")
		}
	default:
		return Config{}, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}

	return cfg, nil
}
