package parallel

import (
	"sync/atomic"
	"testing"
)

func TestRanges(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 16}

	var covered int64
	seen := make([]int32, 1000)
	Ranges(len(seen), func(s, e int) {
		for i := s; i < e; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
		atomic.AddInt64(&covered, int64(e-s))
	}, cfg)

	if covered != int64(len(seen)) {
		t.Errorf("Expected %d bytes covered, got %d", len(seen), covered)
	}
	for i, v := range seen {
		if v != 1 {
			t.Fatalf("Index %d visited %d times", i, v)
		}
	}
}

func TestRanges_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	calls := 0
	Ranges(100, func(s, e int) {
		calls++
		if s != 0 || e != 100 {
			t.Errorf("Expected single range [0,100), got [%d,%d)", s, e)
		}
	}, cfg)

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRanges_Empty(t *testing.T) {
	Ranges(0, func(_, _ int) {
		t.Error("f should not be called for empty range")
	}, DefaultConfig())
}

func TestCopy(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 8}

	src := make([]byte, 1000)
	for i := range src {
		src[i] = byte(i % 251)
	}
	dst := make([]byte, 1000)

	if n := Copy(dst, src, cfg); n != len(src) {
		t.Fatalf("Copy returned %d, want %d", n, len(src))
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("Mismatch at %d: %d != %d", i, dst[i], src[i])
		}
	}
}

func TestCopy_ShortDestination(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 2)

	if n := Copy(dst, src, DefaultConfig()); n != 2 {
		t.Errorf("Copy returned %d, want 2", n)
	}
	if dst[0] != 1 || dst[1] != 2 {
		t.Errorf("Unexpected dst %v", dst)
	}
}

func TestFill(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}

	buf := make([]byte, 500)
	Fill(buf, 0xAB, cfg)
	for i, b := range buf {
		if b != 0xAB {
			t.Fatalf("Byte %d = %#x, want 0xab", i, b)
		}
	}

	Fill(buf, 0, cfg)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("Byte %d = %#x, want 0", i, b)
		}
	}
}

func BenchmarkCopy(b *testing.B) {
	cfg := DefaultConfig()
	src := make([]byte, 16<<20)
	dst := make([]byte, len(src))

	b.Run("parallel", func(b *testing.B) {
		b.SetBytes(int64(len(src)))
		for i := 0; i < b.N; i++ {
			Copy(dst, src, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfgSeq := cfg
		cfgSeq.Enabled = false
		b.SetBytes(int64(len(src)))
		for i := 0; i < b.N; i++ {
			Copy(dst, src, cfgSeq)
		}
	})
}
