package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Blob     BlobConfig     `mapstructure:"blob"`
	S3       S3Config       `mapstructure:"s3"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Avatar   AvatarConfig   `mapstructure:"avatar"`
}

type BlobConfig struct {
	// "s3" or "gcs"
	Backend string `mapstructure:"backend"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DatabaseName string `mapstructure:"database_name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	TableName    string `mapstructure:"table_name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

type GCSConfig struct {
	BucketName string `mapstructure:"bucket_name"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SessionConfig struct {
	KeyID  string `mapstructure:"key_id"`
	Secret string `mapstructure:"secret"`
}

type DeployConfig struct {
	// deployments per owner per window, 0 disables the limit
	Limit         int `mapstructure:"limit"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type AvatarConfig struct {
	MaxDimension int `mapstructure:"max_dimension"`
}

func initConfig() Config {
	cfgFile := "/etc/sitehost.yaml"
	if env := os.Getenv("SITEHOST_CONFIG"); env != "" {
		cfgFile = env
	}

	f, err := os.Open(cfgFile)
	if err != nil {
		log.Panic().Msgf("failed to open config file %v", cfgFile)
	}
	defer f.Close()

	viper.SetConfigType("yaml")
	err = viper.ReadConfig(f)
	if err != nil {
		log.Panic().Msgf("failed to read config %v %v", cfgFile, err)
	}

	log.Info().Msgf("reading config: %v", cfgFile)
	var c Config
	err = viper.Unmarshal(&c)
	if err != nil {
		log.Panic().Msgf("failed to unmarshal config %v %v", cfgFile, err)
	}

	if c.HTTP.Address == "" {
		c.HTTP.Address = "localhost:10000"
	}
	if c.Blob.Backend == "" {
		c.Blob.Backend = "s3"
	}
	if c.Postgres.TableName == "" {
		c.Postgres.TableName = "site_manifest"
	}
	if c.Avatar.MaxDimension == 0 {
		c.Avatar.MaxDimension = 512
	}
	if c.Deploy.WindowMinutes == 0 {
		c.Deploy.WindowMinutes = 60
	}

	return c
}
