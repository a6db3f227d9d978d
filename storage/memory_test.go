package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryProviderRoundtrip(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if err := provider.Set(ctx, "role", "trainer"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := provider.Get(ctx, "role")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "trainer" {
		t.Errorf("Get = %q, want trainer", got)
	}

	if err := provider.Delete(ctx, "role"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := provider.Get(ctx, "role"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryProviderMissingKey(t *testing.T) {
	provider := NewMemoryProvider()
	if _, err := provider.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestMemoryProviderDeleteMissingKey(t *testing.T) {
	provider := NewMemoryProvider()
	if err := provider.Delete(context.Background(), "nope"); err != nil {
		t.Errorf("Delete of a missing key = %v, want nil", err)
	}
}

func TestMemoryProviderConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%4)
			provider.Set(ctx, key, "v")
			provider.Get(ctx, key)
			provider.Delete(ctx, key)
		}(i)
	}
	wg.Wait()
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, Config{Backend: BackendMemory}); err != nil {
		t.Errorf("memory backend: %v", err)
	}
	if _, err := New(ctx, Config{}); err != nil {
		t.Errorf("default backend: %v", err)
	}
	if _, err := New(ctx, Config{Backend: BackendRedis}); err == nil {
		t.Error("redis backend without an address should fail")
	}
	if _, err := New(ctx, Config{Backend: BackendPostgres}); err == nil {
		t.Error("postgres backend without a URL should fail")
	}
	if _, err := New(ctx, Config{Backend: "etcd"}); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestNamespacedKeys(t *testing.T) {
	if got := namespaced("", "role"); got != "role" {
		t.Errorf("namespaced = %q", got)
	}
	if got := namespaced("tab1", "role"); got != "tab1:role" {
		t.Errorf("namespaced = %q", got)
	}
}
