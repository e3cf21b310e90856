//go:build unix

package hostalloc

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmapAlloc(t *testing.T) {
	m, err := NewMmap()
	require.NoError(t, err)
	assert.Equal(t, "mmap", m.Name())

	buf, err := m.Alloc(10000)
	require.NoError(t, err)
	require.Len(t, buf, 10000)

	addr := uintptr(unsafe.Pointer(&buf[0]))
	assert.Zero(t, addr%uintptr(os.Getpagesize()), "mapping must be page aligned")

	for _, b := range buf {
		require.Zero(t, b)
	}
	buf[0], buf[9999] = 1, 2
	require.NoError(t, m.Free(buf))
}

func TestMmapZeroSize(t *testing.T) {
	m, err := NewMmap()
	require.NoError(t, err)

	buf, err := m.Alloc(0)
	require.NoError(t, err)
	assert.NotNil(t, buf)
	assert.NoError(t, m.Free(buf))

	_, err = m.Alloc(-1)
	assert.ErrorIs(t, err, ErrNegativeSize)
}
