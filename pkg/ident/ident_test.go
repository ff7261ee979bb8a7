package ident

import (
	"strings"
	"testing"
	"time"
)

func TestNewIDFormat(t *testing.T) {
	clock := NewManualClock(time.UnixMilli(1719824000123).UTC())
	gen := NewGenerator(clock, 42)

	id := gen.NewID("info")
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %s", len(parts), id)
	}
	if parts[0] != "info" {
		t.Errorf("prefix = %q, want info", parts[0])
	}
	if parts[1] != "1719824000123" {
		t.Errorf("timestamp = %q, want 1719824000123", parts[1])
	}
	if len(parts[2]) < 6 {
		t.Errorf("random suffix too short: %q", parts[2])
	}
}

func TestNewIDUnique(t *testing.T) {
	gen := NewGenerator(WallClock{}, 7)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := gen.NewID("exp")
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id after %d mints: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestRandDeterministic(t *testing.T) {
	a := NewRand(12345)
	b := NewRand(12345)
	for i := 0; i < 100; i++ {
		if a.Uint32() != b.Uint32() {
			t.Fatalf("sequences diverged at step %d", i)
		}
	}
}

func TestShuffleDeterministic(t *testing.T) {
	perm := func(seed int64) []int {
		s := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
		NewRand(seed).Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		return s
	}

	first := perm(99)
	second := perm(99)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("shuffle not reproducible at index %d", i)
		}
	}

	other := perm(100)
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical permutation")
	}
}

func TestManualClockAdvance(t *testing.T) {
	start := time.UnixMilli(1000).UTC()
	clock := NewManualClock(start)
	clock.Advance(3 * time.Second)
	if got := clock.Now(); !got.Equal(start.Add(3 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(3*time.Second))
	}
}
