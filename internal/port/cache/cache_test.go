package cache

import "testing"

func TestKeysAreKVSafe(t *testing.T) {
	if got := TaskKey("logo v2"); got != "task.6c6f676f207632" {
		t.Fatalf("TaskKey = %q", got)
	}
	if got := ArbiterKey("0xA"); got != "arbiter.307841" {
		t.Fatalf("ArbiterKey = %q", got)
	}
	if TaskKey("a") == ArbiterKey("a") {
		t.Fatal("task and arbiter keys must not collide")
	}
}
