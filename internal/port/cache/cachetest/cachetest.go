// Package cachetest is a behavioural suite every cache.Cache adapter must pass.
package cachetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Strob0t/CredForge/internal/port/cache"
)

// Keys shaped like the credential cache's, so separator handling is exercised.
const (
	keyA = "provider_credentials:tenant_id:3f6c1d2e-8a4b-4c5d-9e7f-112233445566:id:rec-a:provider"
	keyB = "provider_credentials:tenant_id:3f6c1d2e-8a4b-4c5d-9e7f-112233445566:id:rec-a:provider_model"
)

// sealed stands in for an AES-GCM sealed value: arbitrary bytes including NUL.
var sealed = []byte{0x00, 0x01, 0xfe, 0xff, 'c', 'r', 'e', 'd', 0x00}

// RunComplianceTests runs the suite against c. Keys are reused between
// subtests, so c should be fresh.
func RunComplianceTests(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()

	get := func(t *testing.T, key string) ([]byte, bool) {
		t.Helper()
		val, found, err := c.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		return val, found
	}
	set := func(t *testing.T, key string, val []byte) {
		t.Helper()
		if err := c.Set(ctx, key, val, time.Minute); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}

	t.Run("BinaryRoundTrip", func(t *testing.T) {
		set(t, keyA, sealed)
		val, found := get(t, keyA)
		if !found {
			t.Fatal("expected hit after Set")
		}
		if !bytes.Equal(val, sealed) {
			t.Fatalf("got %x, want %x", val, sealed)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		if _, found := get(t, "provider_credentials:tenant_id:none:id:none:provider"); found {
			t.Fatal("expected miss for unknown key")
		}
	})

	t.Run("SuffixIsolation", func(t *testing.T) {
		// Provider and model entries for one record id differ only in suffix.
		set(t, keyA, []byte("provider"))
		set(t, keyB, []byte("model"))
		if val, _ := get(t, keyA); string(val) != "provider" {
			t.Fatalf("keyA = %q", val)
		}
		if val, _ := get(t, keyB); string(val) != "model" {
			t.Fatalf("keyB = %q", val)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		set(t, keyA, []byte("v1"))
		set(t, keyA, []byte("v2"))
		val, found := get(t, keyA)
		if !found || string(val) != "v2" {
			t.Fatalf("got %q found=%v, want v2", val, found)
		}
	})

	t.Run("DeleteOnlyTouchesKey", func(t *testing.T) {
		set(t, keyA, []byte("a"))
		set(t, keyB, []byte("b"))
		if err := c.Delete(ctx, keyA); err != nil {
			t.Fatal(err)
		}
		if _, found := get(t, keyA); found {
			t.Fatal("expected miss after Delete")
		}
		if _, found := get(t, keyB); !found {
			t.Fatal("Delete removed a sibling key")
		}
	})

	t.Run("DeleteMissingIsNoop", func(t *testing.T) {
		if err := c.Delete(ctx, "provider_credentials:tenant_id:none:id:never:provider"); err != nil {
			t.Fatalf("Delete of unknown key: %v", err)
		}
	})
}
