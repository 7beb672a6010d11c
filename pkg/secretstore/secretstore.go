// Package secretstore keeps credentials in an encrypted Badger database so
// they can stay out of .env files on disk. Encryption itself comes from
// Badger's key registry; this wrapper only shapes the API.
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; nil opens the database unencrypted
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger needs an index cache once encryption is on.
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "secretstore: open")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetString returns the stored value and whether the key exists. An empty
// stored value reads back as ("", true, nil).
func (s *Store) GetString(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("secretstore: not open")
	}
	k := strings.TrimSpace(key)
	if k == "" {
		return "", false, errors.New("secretstore: key is empty")
	}

	var out string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, errors.Wrap(err, "secretstore: get")
	}
	return out, found, nil
}

func (s *Store) SetString(key, val string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not open")
	}
	k := strings.TrimSpace(key)
	if k == "" {
		return errors.New("secretstore: key is empty")
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(k), []byte(val))
	})
	return errors.Wrap(err, "secretstore: set")
}

// ParseKey decodes a 32-byte encryption key from hex (0x optional) or
// base64. Empty input returns (nil, nil) so callers can treat the key as
// optional.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, errors.Errorf("secretstore: key is %d bytes, want 32", len(b))
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, errors.Errorf("secretstore: key is %d bytes, want 32", len(b))
		}
		return b, nil
	}
	return nil, errors.New("secretstore: key must be 32 bytes as hex or base64")
}
