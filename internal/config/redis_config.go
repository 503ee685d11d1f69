package config

type Redis struct {
	file *FileValues
}

var _ RedisConfig = Redis{}

// GetRedisAddr returns the Redis address used for cross-process tab sync. Empty disables it.
func (r Redis) GetRedisAddr() string {
	return lookup("REDIS_ADDR", r.file.RedisAddr, "")
}

func (r Redis) GetRedisPassword() string {
	return lookup("REDIS_PASSWORD", r.file.RedisPassword, "")
}

func (r Redis) GetRedisDB() int {
	return lookupInt("REDIS_DB", r.file.RedisDB, 0)
}
