package config

import (
	"os"
	"strconv"
	"time"
)

const (
	appNameVar  = "APP_NAME"
	envVar      = "ENV"
	baseURLVar  = "BASE_URL"
	logLevelVar = "LOG_LEVEL"
)

type EnvVars struct {
	file *FileValues
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return lookup(appNameVar, e.file.AppName, "Tab Session")
}

func (e EnvVars) GetEnv() string {
	return lookup(envVar, e.file.Env, "DEV")
}

// GetBaseURL returns the base URL of the backend the client talks to (e.g., "https://api.example.com")
func (e EnvVars) GetBaseURL() string {
	return lookup(baseURLVar, e.file.BaseURL, "http://localhost:8080")
}

func (e EnvVars) GetLogLevel() string {
	return lookup(logLevelVar, e.file.LogLevel, "info")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// lookup resolves a setting: environment first, then the config file, then the default.
func lookup(envVar, fileValue, defaultValue string) string {
	if fileValue != "" {
		defaultValue = fileValue
	}
	return GetEnv(envVar, defaultValue)
}

func lookupDuration(envVar, fileValue string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(lookup(envVar, fileValue, defaultValue.String()))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func lookupInt(envVar string, fileValue int, defaultValue int) int {
	if fileValue != 0 {
		defaultValue = fileValue
	}
	n, err := strconv.Atoi(GetEnv(envVar, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return n
}

func lookupBool(envVar string, fileValue *bool, defaultValue bool) bool {
	if fileValue != nil {
		defaultValue = *fileValue
	}
	b, err := strconv.ParseBool(GetEnv(envVar, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return b
}
