package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `device:
  backend: sim
  count: 2
host:
  allocator: go
snapshot:
  compress: true
logging:
  level: error
  console: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// tableRows splits tabwriter output into whitespace-separated fields,
// starting at the header line that begins with header.
func tableRows(out, header string) [][]string {
	var rows [][]string
	started := false
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, header) {
			started = true
			continue
		}
		if !started {
			continue
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		rows = append(rows, strings.Fields(line))
	}
	return rows
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "/nonexistent/config.yaml", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "syncmem "+version)
}

func TestConfigCommand(t *testing.T) {
	cfg := writeConfig(t, testConfig)

	out, err := run(t, cfg, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: sim")
	assert.Contains(t, out, "count: 2")
	assert.Contains(t, out, "affinity_check: true")
}

func TestLogLevelFlag(t *testing.T) {
	cfg := writeConfig(t, testConfig)

	out, err := run(t, cfg, "--log-level", "info", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "level: info")

	out, err = run(t, cfg, "--verbose", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "level: debug")

	_, err = run(t, cfg, "--log-level", "loud", "config")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "device:\n  backend: tpu\n")

	_, err := run(t, cfg, "devices")
	assert.ErrorContains(t, err, "device.backend")
}

func TestDevicesCommand(t *testing.T) {
	cfg := writeConfig(t, testConfig)

	out, err := run(t, cfg, "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend: sim")

	rows := tableRows(out, "ID")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"0", "*", "sim:0"}, rows[0][:3])
	assert.Equal(t, []string{"1", "sim:1"}, rows[1][:2])
	assert.Equal(t, "unlimited", rows[1][len(rows[1])-1])
}

func TestDevicesCommandHostOnly(t *testing.T) {
	cfg := writeConfig(t, testConfig)
	t.Setenv("SYNCMEM_DEVICE_BACKEND", "none")

	out, err := run(t, cfg, "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "host-only")
}

func TestTraceCommand(t *testing.T) {
	cfg := writeConfig(t, testConfig)

	out, err := run(t, cfg, "trace")
	require.NoError(t, err)
	assert.Contains(t, out, "Buffer: 1.0 KiB on sim")

	rows := tableRows(out, "STEP")
	want := [][]string{
		{"new", "uninitialized", "false", "false", "0", "0", "0", "0"},
		{"read", "host", "host-fresh", "true", "false", "0", "0", "0", "0"},
		{"read", "device", "synced", "true", "true", "1", "1", "0", "0"},
		{"write", "host", "host-fresh", "true", "true", "1", "1", "0", "0"},
		{"async", "push", "synced", "true", "true", "1", "1", "0", "1"},
		{"write", "device", "device-fresh", "true", "true", "1", "1", "0", "1"},
		{"read", "host", "synced", "true", "true", "1", "1", "1", "1"},
		{"release", "synced", "false", "false", "1", "1", "1", "1"},
	}
	assert.Equal(t, want, rows)
	assert.Contains(t, out, "Host: 1 allocs, 1 frees, peak 1.0 KiB")
}

func TestTraceCommandHostOnly(t *testing.T) {
	cfg := writeConfig(t, testConfig)
	t.Setenv("SYNCMEM_DEVICE_BACKEND", "none")

	out, err := run(t, cfg, "trace", "--size", "64")
	require.NoError(t, err)
	rows := tableRows(out, "STEP")
	require.Len(t, rows, 8)
	assert.Equal(t, []string{"read", "device", "(skipped,", "no", "device)"}, rows[2])
	assert.Equal(t, []string{"read", "host", "host-fresh", "true", "false", "-", "-", "-", "-"}, rows[1])
}

func TestTraceCommandNegativeSize(t *testing.T) {
	cfg := writeConfig(t, testConfig)

	_, err := run(t, cfg, "trace", "--size", "-1")
	assert.Error(t, err)
}

func TestBenchCommand(t *testing.T) {
	cfg := writeConfig(t, testConfig)

	out, err := run(t, cfg, "bench", "--sizes", "1KiB,4KiB", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "1.0 KiB")
	assert.Contains(t, out, "4.0 KiB")
	assert.Contains(t, out, "/s")

	_, err = run(t, cfg, "bench", "--sizes", "lots")
	assert.Error(t, err)
	_, err = run(t, cfg, "bench", "-n", "0")
	assert.Error(t, err)
}

func TestBenchCommandNeedsDevice(t *testing.T) {
	cfg := writeConfig(t, testConfig)
	t.Setenv("SYNCMEM_DEVICE_BACKEND", "none")

	_, err := run(t, cfg, "bench")
	assert.ErrorContains(t, err, "device backend")
}

func TestSnapshotCommands(t *testing.T) {
	cfg := writeConfig(t, testConfig)
	dir := filepath.Join(t.TempDir(), "snapshots")

	out, err := run(t, cfg, "snapshot", "save", "weights", "--size", "4KiB", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `saved "weights": 4.0 KiB`)

	out, err = run(t, cfg, "snapshot", "load", "weights", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "residency synced")
	assert.Contains(t, out, "content matches the test pattern")

	out, err = run(t, cfg, "snapshot", "list", "--dir", dir)
	require.NoError(t, err)
	rows := tableRows(out, "KEY")
	require.Len(t, rows, 1)
	assert.Equal(t, "weights", rows[0][0])
	assert.Equal(t, "device-fresh", rows[0][len(rows[0])-1])

	out, err = run(t, cfg, "snapshot", "delete", "weights", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `deleted "weights"`)

	_, err = run(t, cfg, "snapshot", "delete", "weights", "--dir", dir)
	assert.ErrorContains(t, err, "no snapshot named")
	_, err = run(t, cfg, "snapshot", "load", "weights", "--dir", dir)
	assert.Error(t, err)
}
