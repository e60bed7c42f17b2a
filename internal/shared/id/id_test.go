package id

import (
	"strings"
	"testing"
)

func TestPrefixes(t *testing.T) {
	if !strings.HasPrefix(NewTabID().String(), "tab_") {
		t.Error("tab id missing prefix")
	}
	if !strings.HasPrefix(NewRequestID().String(), "req_") {
		t.Error("request id missing prefix")
	}
	if !strings.HasPrefix(NewSurfaceID().String(), "surf_") {
		t.Error("surface id missing prefix")
	}
	if !strings.HasPrefix(NewCheckID().String(), "chk_") {
		t.Error("check id missing prefix")
	}
}

func TestUniqueness(t *testing.T) {
	seen := make(map[TabID]bool)
	for i := 0; i < 1000; i++ {
		id := NewTabID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestConcurrentGeneration(t *testing.T) {
	g := Default()
	done := make(chan string, 100)
	for i := 0; i < 100; i++ {
		go func() {
			done <- g.GenerateWithPrefix("tab")
		}()
	}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := <-done
		if seen[id] {
			t.Fatalf("duplicate id under concurrency: %s", id)
		}
		seen[id] = true
	}
}
