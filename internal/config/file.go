package config

import (
	"io/fs"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileValues holds the optional YAML overrides. Environment variables still win.
type FileValues struct {
	AppName  string `yaml:"app_name"`
	Env      string `yaml:"env"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`

	Port               string `yaml:"port"`
	JWTSecret          string `yaml:"jwt_secret"`
	AccessTokenExpiry  string `yaml:"access_token_expiry"`
	RefreshTokenExpiry string `yaml:"refresh_token_expiry"`
	AllowedOrigins     string `yaml:"allowed_origins"`
	CookieSecure       *bool  `yaml:"cookie_secure"`

	IdentityStaleTime      string `yaml:"identity_stale_time"`
	PulseDelay             string `yaml:"sync_pulse_delay"`
	ChannelName            string `yaml:"sync_channel"`
	StorageKey             string `yaml:"sync_storage_key"`
	RequestTimeout         string `yaml:"request_timeout"`
	RenewOnlyWhenSignedOut *bool  `yaml:"renew_only_when_signed_out"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// Load reads YAML overrides from path. A missing file or empty path yields the
// environment-only configuration.
func Load(path string) (Config, error) {
	file := &FileValues{}
	if path == "" {
		return newMainConfig(file), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return newMainConfig(file), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[config Load] read %s", path)
	}

	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, errors.Wrapf(err, "[config Load] parse %s", path)
	}
	return newMainConfig(file), nil
}
