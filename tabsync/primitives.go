package tabsync

// BroadcastChannel is a direct same-origin messaging channel. Messages posted
// on one channel are delivered asynchronously to every other open channel with
// the same name, never back to the sender.
type BroadcastChannel interface {
	PostMessage(data []byte) error
	OnMessage(fn func(data []byte))
	Close() error
}

// ChannelOpener opens a named broadcast channel. It fails when the primitive is
// not available in the current environment.
type ChannelOpener func(name string) (BroadcastChannel, error)

// StorageEvent describes a change made to shared storage by another tab.
// NewValue is empty when the key was removed.
type StorageEvent struct {
	Key      string
	OldValue string
	NewValue string
}

// SharedStorage is a key-value store shared by all tabs of an origin. Change
// events are surfaced to other tabs only, not to the tab that made the change.
type SharedStorage interface {
	SetItem(key, value string) error
	RemoveItem(key string) error
	OnChange(fn func(StorageEvent)) (unsubscribe func())
}
