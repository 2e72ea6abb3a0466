package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryKVGetSetAndMiss(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss for missing key, got %v", err)
	}

	if err := kv.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != "v" {
		t.Errorf("Expected value v, got %s", v)
	}

	// Expired entries read as misses
	if err := kv.Set(ctx, "ttl", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := kv.Get(ctx, "ttl"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss for expired key, got %v", err)
	}
}

func TestMemoryKVLock(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	held, err := kv.AcquireLock(ctx, "lock", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !held {
		t.Fatal("Expected first acquire to succeed")
	}

	held, err = kv.AcquireLock(ctx, "lock", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if held {
		t.Error("Expected second acquire to fail while held")
	}

	if err := kv.ReleaseLock(ctx, "lock"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	held, err = kv.AcquireLock(ctx, "lock", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !held {
		t.Error("Expected acquire to succeed after release")
	}

	// TTL expiry frees the lock without an explicit release
	held, err = kv.AcquireLock(ctx, "short", 10*time.Millisecond)
	if err != nil || !held {
		t.Fatalf("AcquireLock failed: held=%v err=%v", held, err)
	}
	time.Sleep(20 * time.Millisecond)
	held, err = kv.AcquireLock(ctx, "short", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !held {
		t.Error("Expected acquire to succeed after TTL expiry")
	}
}

func TestMemoryKVScanKeys(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	for _, key := range []string{"a:1", "a:2", "b:1"} {
		if err := kv.Set(ctx, key, "v", 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	keys, err := kv.ScanKeys(ctx, "a:*")
	if err != nil {
		t.Fatalf("ScanKeys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a:1" || keys[1] != "a:2" {
		t.Errorf("Expected [a:1 a:2], got %v", keys)
	}
}
