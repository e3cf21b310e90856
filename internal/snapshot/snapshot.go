// Package snapshot persists the contents of synchronized buffers in a
// badger key-value store.
//
// Each snapshot is two records: a msgpack header and the payload, written in
// one transaction. Payloads are optionally lz4 block-compressed and always
// verified against an xxhash checksum of the uncompressed bytes.
package snapshot

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/born-ml/syncmem/internal/logging"
	"github.com/born-ml/syncmem/internal/syncedmem"
	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/pierrec/lz4/v4"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is the header version written by Save.
const FormatVersion = 1

// Payload codecs.
const (
	CodecRaw = "raw"
	CodecLZ4 = "lz4"
)

// Snapshot errors.
var (
	ErrNotFound     = errors.New("snapshot not found")
	ErrCorrupt      = errors.New("snapshot corrupt")
	ErrSizeMismatch = errors.New("snapshot size does not match buffer")
	ErrEmptyKey     = errors.New("empty snapshot key")
)

var (
	headerPrefix  = []byte("h/")
	payloadPrefix = []byte("d/")
)

// Header describes a stored snapshot.
type Header struct {
	Version   int    `msgpack:"v"`
	Size      int    `msgpack:"n"`
	Codec     string `msgpack:"c"`
	Stored    int    `msgpack:"s"` // payload bytes on disk
	Checksum  uint64 `msgpack:"x"` // xxhash64 of the uncompressed bytes
	Residency string `msgpack:"r"` // buffer state when saved
	SavedAt   int64  `msgpack:"t"` // Unix nano
}

// Ratio returns the uncompressed to stored size ratio.
func (h Header) Ratio() float64 {
	if h.Stored == 0 {
		return 1
	}
	return float64(h.Size) / float64(h.Stored)
}

// Options configures a Store.
type Options struct {
	// Compress lz4-compresses payloads that shrink.
	Compress bool
	// Logger receives store and badger messages. Nil uses the shared logger.
	Logger *logrus.Entry
}

// Store is a snapshot database.
type Store struct {
	db       *badger.DB
	compress bool
	log      *logrus.Entry
}

// Open opens the store in dir. An empty dir keeps everything in memory.
func Open(dir string, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Component("snapshot")
	}

	bopts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log})
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening store %q: %w", dir, err)
	}
	return &Store{db: db, compress: opts.Compress, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the current contents of m under key, replacing any previous
// snapshot. Device-fresh data is pulled to the host first.
func (s *Store) Save(key string, m *syncedmem.SyncedMemory) (Header, error) {
	if key == "" {
		return Header{}, ErrEmptyKey
	}
	residency := m.Head()
	data := m.HostData()

	h := Header{
		Version:   FormatVersion,
		Size:      len(data),
		Codec:     CodecRaw,
		Checksum:  xxhash.Sum64(data),
		Residency: residency.String(),
		SavedAt:   time.Now().UnixNano(),
	}

	payload := data
	if s.compress && len(data) > 0 {
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return Header{}, fmt.Errorf("snapshot: compressing %q: %w", key, err)
		}
		// n == 0 means the data did not compress.
		if n > 0 && n < len(data) {
			payload = buf[:n]
			h.Codec = CodecLZ4
		}
	}
	h.Stored = len(payload)

	rawHeader, err := msgpack.Marshal(&h)
	if err != nil {
		return Header{}, fmt.Errorf("snapshot: encoding header: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(headerKey(key), rawHeader); err != nil {
			return err
		}
		return txn.Set(payloadKey(key), payload)
	})
	if err != nil {
		return Header{}, fmt.Errorf("snapshot: saving %q: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"key":    key,
		"bytes":  h.Size,
		"stored": h.Stored,
		"codec":  h.Codec,
	}).Debug("snapshot saved")
	return h, nil
}

// Load restores the snapshot under key into m through MutableHostData, so m
// ends up HostFresh. m must have the snapshot's size.
func (s *Store) Load(key string, m *syncedmem.SyncedMemory) (Header, error) {
	var (
		h       Header
		payload []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if h, err = readHeader(txn, key); err != nil {
			return err
		}
		item, err := txn.Get(payloadKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %q has no payload", ErrCorrupt, key)
			}
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return Header{}, fmt.Errorf("snapshot: loading %q: %w", key, err)
	}

	if h.Size != m.Size() {
		return h, fmt.Errorf("%w: %q holds %d bytes, buffer has %d", ErrSizeMismatch, key, h.Size, m.Size())
	}

	data, err := decode(h, payload)
	if err != nil {
		return h, fmt.Errorf("snapshot: loading %q: %w", key, err)
	}
	if xxhash.Sum64(data) != h.Checksum {
		return h, fmt.Errorf("%w: %q checksum mismatch", ErrCorrupt, key)
	}

	copy(m.MutableHostData(), data)

	s.log.WithFields(logrus.Fields{"key": key, "bytes": h.Size}).Debug("snapshot loaded")
	return h, nil
}

// Stat returns the header stored under key.
func (s *Store) Stat(key string) (Header, error) {
	var h Header
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		h, err = readHeader(txn, key)
		return err
	})
	if err != nil {
		return Header{}, fmt.Errorf("snapshot: stat %q: %w", key, err)
	}
	return h, nil
}

// Delete removes the snapshot under key.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := readHeader(txn, key); err != nil {
			return err
		}
		if err := txn.Delete(headerKey(key)); err != nil {
			return err
		}
		return txn.Delete(payloadKey(key))
	})
	if err != nil {
		return fmt.Errorf("snapshot: deleting %q: %w", key, err)
	}
	return nil
}

// Keys returns every snapshot key in sorted order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = headerPrefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(headerPrefix); it.ValidForPrefix(headerPrefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(headerPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: listing keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func readHeader(txn *badger.Txn, key string) (Header, error) {
	var h Header
	item, err := txn.Get(headerKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return h, fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return h, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return h, err
	}
	if err := msgpack.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("%w: header of %q: %w", ErrCorrupt, key, err)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: %q has format version %d", ErrCorrupt, key, h.Version)
	}
	return h, nil
}

func decode(h Header, payload []byte) ([]byte, error) {
	if len(payload) != h.Stored {
		return nil, fmt.Errorf("%w: payload %d bytes, header says %d", ErrCorrupt, len(payload), h.Stored)
	}
	switch h.Codec {
	case CodecRaw:
		return payload, nil
	case CodecLZ4:
		out := make([]byte, h.Size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if n != h.Size {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, n, h.Size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", ErrCorrupt, h.Codec)
	}
}

func headerKey(key string) []byte {
	return append(append([]byte(nil), headerPrefix...), key...)
}

func payloadKey(key string) []byte {
	return append(append([]byte(nil), payloadPrefix...), key...)
}

// badgerLogger routes badger's chatty info output to debug.
type badgerLogger struct {
	e *logrus.Entry
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.e.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.e.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.e.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.e.Debugf(f, v...) }
