package config

import "time"

type Session struct {
	file *FileValues
}

var _ SessionConfig = Session{}

// GetIdentityStaleTime is how long a fetched profile is served from cache
func (s Session) GetIdentityStaleTime() time.Duration {
	return lookupDuration("IDENTITY_STALE_TIME", s.file.IdentityStaleTime, 5*time.Minute)
}

// GetPulseDelay is how long a storage-pulse value lives before it is removed
func (s Session) GetPulseDelay() time.Duration {
	return lookupDuration("SYNC_PULSE_DELAY", s.file.PulseDelay, 100*time.Millisecond)
}

func (s Session) GetChannelName() string {
	return lookup("SYNC_CHANNEL", s.file.ChannelName, "auth-sync")
}

func (s Session) GetStorageKey() string {
	return lookup("SYNC_STORAGE_KEY", s.file.StorageKey, "auth-sync-event")
}

func (s Session) GetRequestTimeout() time.Duration {
	return lookupDuration("REQUEST_TIMEOUT", s.file.RequestTimeout, 30*time.Second)
}

func (s Session) GetRenewOnlyWhenSignedOut() bool {
	return lookupBool("RENEW_ONLY_WHEN_SIGNED_OUT", s.file.RenewOnlyWhenSignedOut, false)
}
