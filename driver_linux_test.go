//go:build linux

package compio

import "testing"

func TestNewDriverConstructsOrFallsBackCleanly(t *testing.T) {
	d, err := NewDriver()
	if err != nil {
		t.Skipf("no usable backend on this host: %v", err)
	}
	defer d.Close()

	if d.AsRawHandle() < 0 {
		t.Fatalf("expected a valid raw handle, got %d", d.AsRawHandle())
	}
}

func TestWithEntriesConstructsOrFallsBackCleanly(t *testing.T) {
	d, err := WithEntries(64)
	if err != nil {
		t.Skipf("no usable backend on this host: %v", err)
	}
	defer d.Close()
}
