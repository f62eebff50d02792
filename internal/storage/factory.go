package storage

import (
	"fmt"
	"sort"
	"time"
)

// Settings is the backend-neutral connection configuration handed to
// whichever backend is registered under the requested name. The memory
// backend ignores it; SQL backends map it onto their own config and
// fill defaults for anything left zero.
type Settings struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string // postgres only
	TLS             string // mysql only
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Factory builds a Storage backend from connection settings.
type Factory func(Settings) (Storage, error)

var factories = make(map[string]Factory)

// Register makes a backend available to Open under the given names.
// Backends register themselves in init, sql-driver style; callers
// import the backend packages for side effects.
func Register(factory Factory, names ...string) {
	for _, name := range names {
		factories[name] = factory
	}
}

// Open builds the backend registered under name.
func Open(name string, settings Settings) (Storage, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q (supported: %v)", name, SupportedBackends())
	}
	return factory(settings)
}

// SupportedBackends lists every registered backend name, sorted.
func SupportedBackends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
