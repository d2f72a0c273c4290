// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	// RunCleanup makes the process run a single retention sweep and exit
	// instead of serving HTTP.
	RunCleanup = pflag.Bool("cleanup", false, "Runs a one-shot retention sweep and exits")

	validLogLevels       = []string{"debug", "info", "warn", "error", "fatal"}
	validSeparationModes = []string{"local", "remote"}
)

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("cors.origin", "cors_origin")

	v.BindEnv("db.dsn", "db_dsn")
	v.BindEnv("db.path", "db_path")

	v.BindEnv("cloudflare.account_id", "cloudflare_account_id")
	v.BindEnv("cloudflare.access_key_id", "cloudflare_access_key_id")
	v.BindEnv("cloudflare.secret_access_key", "cloudflare_secret_access_key")
	v.BindEnv("cloudflare.bucket", "cloudflare_bucket")
	v.BindEnv("cloudflare.public_url", "cloudflare_public_url")
	v.BindEnv("cloudflare.folder", "cloudflare_folder")

	v.BindEnv("separation.mode", "separation_mode")
	v.BindEnv("separation.binary", "separation_binary")
	v.BindEnv("separation.model", "separation_model")
	v.BindEnv("separation.local_timeout", "separation_local_timeout")
	v.BindEnv("separation.base_url", "separation_base_url")
	v.BindEnv("separation.api_key", "separation_api_key")
	v.BindEnv("separation.stems", "separation_stems")
	v.BindEnv("separation.poll_interval", "separation_poll_interval")
	v.BindEnv("separation.poll_attempts", "separation_poll_attempts")

	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.allowed_types", "upload_allowed_types")

	v.BindEnv("retention.free", "retention_free")
	v.BindEnv("retention.pro", "retention_pro")

	v.BindEnv("cleanup.interval", "cleanup_interval")
	v.BindEnv("queue.workers", "queue_workers")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("cors.origin", "http://localhost:3000")

	v.SetDefault("db.path", "database.db")

	v.SetDefault("cloudflare.folder", "stems")

	v.SetDefault("separation.mode", "remote")
	v.SetDefault("separation.binary", "demucs")
	v.SetDefault("separation.model", "htdemucs_6s")
	v.SetDefault("separation.local_timeout", "10m")
	v.SetDefault("separation.stems", []string{"vocals", "drums", "bass", "guitar", "piano", "other"})
	v.SetDefault("separation.poll_interval", "5s")
	v.SetDefault("separation.poll_attempts", 60)

	v.SetDefault("upload.max_size", 50)
	v.SetDefault("upload.allowed_types", []string{"audio/mpeg", "audio/wav", "audio/flac", "audio/ogg", "audio/mp4"})

	v.SetDefault("retention.free", 24)
	v.SetDefault("retention.pro", 168)

	v.SetDefault("cleanup.interval", "30m")
	v.SetDefault("queue.workers", 2)

	// The config file is optional here since deployments are env-driven.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if !slices.Contains(validSeparationModes, v.GetString("separation.mode")) {
		return errors.New("invalid separation mode provided")
	}

	if v.GetString("separation.mode") == "remote" && v.GetString("separation.base_url") == "" {
		return errors.New("separation.base_url can't be empty in remote mode")
	}

	if v.GetString("cloudflare.account_id") == "" {
		return errors.New("account id can't be empty")
	}
	if v.GetString("cloudflare.access_key_id") == "" {
		return errors.New("account access id can't be empty")
	}
	if v.GetString("cloudflare.secret_access_key") == "" {
		return errors.New("secret access key can't be empty")
	}
	if v.GetString("cloudflare.bucket") == "" {
		return errors.New("bucket can't be empty")
	}

	if v.GetInt("retention.free") <= 0 || v.GetInt("retention.pro") <= 0 {
		return errors.New("retention windows must be bigger than 0")
	}

	if v.GetInt("queue.workers") <= 0 {
		return errors.New("queue.workers must be bigger than 0")
	}

	if v.GetInt("separation.poll_attempts") <= 0 {
		return errors.New("separation.poll_attempts must be bigger than 0")
	}

	for _, s := range v.GetStringSlice("separation.stems") {
		if !slices.Contains([]string{"vocals", "drums", "bass", "guitar", "piano", "other"}, s) {
			return fmt.Errorf("invalid stem type in separation.stems, %s", s)
		}
	}

	if len(v.GetStringSlice("upload.allowed_types")) == 0 {
		zap.L().Warn("No upload.allowed_types specified, any audio type will be accepted")
	}

	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	return nil
}
