// Package parallel splits large byte-range operations across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum bytes per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 256 * 1024,
	}
}

// Ranges calls f(start, end) over consecutive sub-ranges covering [0, n).
// Falls back to a single call if parallelism is disabled or n is too small.
func Ranges(n int, f func(start, end int), cfg Config) {
	if n <= 0 {
		return
	}
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < 2*cfg.MinChunkSize {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}

// Copy copies min(len(dst), len(src)) bytes and returns the count.
func Copy(dst, src []byte, cfg Config) int {
	n := min(len(dst), len(src))
	Ranges(n, func(s, e int) {
		copy(dst[s:e], src[s:e])
	}, cfg)
	return n
}

// Fill sets every byte of dst to v.
func Fill(dst []byte, v byte, cfg Config) {
	Ranges(len(dst), func(s, e int) {
		chunk := dst[s:e]
		if v == 0 {
			clear(chunk)
			return
		}
		for i := range chunk {
			chunk[i] = v
		}
	}, cfg)
}
