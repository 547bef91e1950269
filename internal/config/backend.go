package config

// ConfigBackend stores the non-secret keys of the specs table by their
// dotted names (server.base_url, search.per_page, ...). macOS uses
// UserDefaults via the `defaults` CLI; elsewhere a JSON file under
// $XDG_CONFIG_HOME/cvdesk.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
