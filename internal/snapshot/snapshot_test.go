package snapshot

import (
	"bytes"
	"io"
	"testing"

	"github.com/born-ml/syncmem/internal/backend/sim"
	"github.com/born-ml/syncmem/internal/syncedmem"
	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func openStore(t *testing.T, dir string, compress bool) *Store {
	t.Helper()
	s, err := Open(dir, Options{Compress: compress, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newBuffer(size int) (*syncedmem.SyncedMemory, *sim.Device) {
	d := sim.NewDevice(0, sim.WithLogger(quietLogger()))
	return syncedmem.New(size,
		syncedmem.WithDevice(d, nil),
		syncedmem.WithLogger(quietLogger()),
	), d
}

func TestSaveLoadCompressible(t *testing.T) {
	s := openStore(t, "", true)

	src, _ := newBuffer(4096)
	copy(src.MutableHostData(), bytes.Repeat([]byte("syncmem "), 512))

	h, err := s.Save("weights", src)
	require.NoError(t, err)
	assert.Equal(t, CodecLZ4, h.Codec)
	assert.Equal(t, 4096, h.Size)
	assert.Less(t, h.Stored, h.Size)
	assert.Greater(t, h.Ratio(), 1.0)
	assert.Equal(t, "host-fresh", h.Residency)

	dst, _ := newBuffer(4096)
	got, err := s.Load("weights", dst)
	require.NoError(t, err)
	assert.Equal(t, h.Checksum, got.Checksum)
	assert.Equal(t, syncedmem.HostFresh, dst.Head())
	assert.Equal(t, src.HostData(), dst.HostData())
}

func TestSaveIncompressibleStoresRaw(t *testing.T) {
	s := openStore(t, "", true)

	m, _ := newBuffer(64)
	buf := m.MutableHostData()
	for i := range buf {
		buf[i] = byte(i*131 + 7)
	}

	h, err := s.Save("noise", m)
	require.NoError(t, err)
	assert.Equal(t, CodecRaw, h.Codec)
	assert.Equal(t, 64, h.Stored)
}

func TestSaveWithoutCompression(t *testing.T) {
	s := openStore(t, "", false)

	m, _ := newBuffer(1024)
	h, err := s.Save("zeros", m)
	require.NoError(t, err)
	assert.Equal(t, CodecRaw, h.Codec)
	assert.Equal(t, "uninitialized", h.Residency)
}

func TestSavePullsDeviceData(t *testing.T) {
	s := openStore(t, "", true)

	m, d := newBuffer(8)
	copy(m.MutableDeviceData().(*sim.Memory).Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8})

	h, err := s.Save("dev", m)
	require.NoError(t, err)
	assert.Equal(t, "device-fresh", h.Residency)
	assert.Equal(t, syncedmem.Synced, m.Head())
	assert.Equal(t, int64(1), d.Stats().DeviceToHost)

	dst, _ := newBuffer(8)
	_, err = s.Load("dev", dst)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, dst.HostData())
}

func TestLoadErrors(t *testing.T) {
	s := openStore(t, "", false)

	m, _ := newBuffer(16)
	_, err := s.Load("missing", m)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Save("", m)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = s.Save("small", m)
	require.NoError(t, err)

	big, _ := newBuffer(32)
	_, err = s.Load("small", big)
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.Equal(t, syncedmem.Uninitialized, big.Head(), "failed load leaves the buffer alone")
}

func TestLoadDetectsCorruption(t *testing.T) {
	s := openStore(t, "", false)

	m, _ := newBuffer(16)
	copy(m.MutableHostData(), "0123456789abcdef")
	_, err := s.Save("k", m)
	require.NoError(t, err)

	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(payloadKey("k"), []byte("0123456789abcdeX"))
	}))

	dst, _ := newBuffer(16)
	_, err = s.Load("k", dst)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	s := openStore(t, "", false)

	raw, err := msgpack.Marshal(&Header{Version: 99, Size: 4, Codec: CodecRaw, Stored: 4})
	require.NoError(t, err)
	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(headerKey("future"), raw)
	}))

	_, err = s.Stat("future")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestKeysStatDelete(t *testing.T) {
	s := openStore(t, "", true)

	for _, k := range []string{"b", "a", "c"} {
		m, _ := newBuffer(4)
		_, err := s.Save(k, m)
		require.NoError(t, err)
	}

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	h, err := s.Stat("b")
	require.NoError(t, err)
	assert.Equal(t, 4, h.Size)

	require.NoError(t, s.Delete("b"))
	assert.ErrorIs(t, s.Delete("b"), ErrNotFound)
	_, err = s.Stat("b")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err = s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, keys)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, Options{Compress: true, Logger: quietLogger()})
	require.NoError(t, err)
	m, _ := newBuffer(128)
	copy(m.MutableHostData(), bytes.Repeat([]byte{0xAB}, 128))
	_, err = s.Save("persist", m)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = openStore(t, dir, true)
	dst, _ := newBuffer(128)
	_, err = s.Load("persist", dst)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, 128), dst.HostData())
}

func TestZeroSizeBuffer(t *testing.T) {
	s := openStore(t, "", true)

	m, _ := newBuffer(0)
	h, err := s.Save("empty", m)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Size)
	assert.Equal(t, 1.0, h.Ratio())

	dst, _ := newBuffer(0)
	_, err = s.Load("empty", dst)
	require.NoError(t, err)
}
