package store

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"nameday/internal/logging"
	"nameday/internal/nameday"
)

// Kinds accepted by Open.
const (
	KindAuto   = "auto"
	KindFile   = "file"
	KindKV     = "kv"
	KindSQLite = "sqlite"
)

// Config selects and configures a store.
type Config struct {
	Kind       string
	DataPath   string
	SQLitePath string
	KVURL      string
	KVToken    string
	KVKey      string
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Open builds the configured store. With KindAuto, a configured KV endpoint
// is used in front of the data file and the file alone otherwise. The
// returned close function is never nil.
func Open(cfg Config) (nameday.Store, func() error, error) {
	noop := func() error { return nil }
	if cfg.DataPath == "" {
		cfg.DataPath = DefaultFileName
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindAuto:
		file := NewFileStore(cfg.DataPath)
		if cfg.KVURL == "" || cfg.KVToken == "" {
			return file, noop, nil
		}
		kv := NewKVStore(cfg.HTTPClient, cfg.KVURL, cfg.KVToken, cfg.KVKey)
		return NewFallbackStore(kv, file, cfg.Logger), noop, nil
	case KindFile:
		return NewFileStore(cfg.DataPath), noop, nil
	case KindKV:
		if cfg.KVURL == "" || cfg.KVToken == "" {
			return nil, noop, errors.New("kv store requires KV_REST_API_URL and KV_REST_API_TOKEN")
		}
		return NewKVStore(cfg.HTTPClient, cfg.KVURL, cfg.KVToken, cfg.KVKey), noop, nil
	case KindSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = "namedays.db"
		}
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, noop, err
		}
		return db, db.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store %q", cfg.Kind)
	}
}
