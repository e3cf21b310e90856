//go:build !windows

package webgpu

import (
	"testing"

	"github.com/born-ml/syncmem/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestOpenUnavailable(t *testing.T) {
	d, err := Open()
	assert.Nil(t, d)
	assert.ErrorIs(t, err, device.ErrUnavailable)
	assert.False(t, IsAvailable())
}
