package config

import "time"

type Config interface {
	EnvConfig
	ServerConfig
	SessionConfig
	RedisConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
}

type ServerConfig interface {
	GetPort() string
	GetJWTSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetAllowedOrigins() AllowedOrigins
	GetCookieSecure() bool
}

type SessionConfig interface {
	GetIdentityStaleTime() time.Duration
	GetPulseDelay() time.Duration
	GetChannelName() string
	GetStorageKey() string
	GetRequestTimeout() time.Duration
	GetRenewOnlyWhenSignedOut() bool
}

type RedisConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type mainConfig struct {
	EnvVars
	Server
	Session
	Redis
}

// New returns a Config backed by environment variables only.
func New() Config {
	return newMainConfig(&FileValues{})
}

func newMainConfig(file *FileValues) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{file: file},
		Server:  Server{file: file},
		Session: Session{file: file},
		Redis:   Redis{file: file},
	}
}
