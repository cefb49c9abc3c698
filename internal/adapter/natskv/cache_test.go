package natskv_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CredForge/internal/adapter/natskv"
	"github.com/Strob0t/CredForge/internal/port/cache/cachetest"
)

func TestKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{
			"provider_credentials:tenant_id:3f6c1d2e-8a4b-4c5d-9e7f-112233445566:id:42:provider",
			"provider_credentials.tenant_id.3f6c1d2e-8a4b-4c5d-9e7f-112233445566.id.42.provider",
		},
		{"plain-key", "plain-key"},
		{"a b*c>", "a_b_c_"},
	}
	for _, tt := range tests {
		if got := natskv.Key(tt.in); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newKV(t *testing.T, bucket string, history uint8) jetstream.KeyValue {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatal(err)
	}
	kv, err := js.CreateOrUpdateKeyValue(context.Background(), jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     time.Minute,
		History: history,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = js.DeleteKeyValue(context.Background(), bucket) })
	return kv
}

func TestCompliance(t *testing.T) {
	cachetest.RunComplianceTests(t, natskv.New(newKV(t, "CREDFORGE_TEST_CACHE", 1)))
}

func TestDeletePurgesHistory(t *testing.T) {
	kv := newKV(t, "CREDFORGE_TEST_HISTORY", 5)
	c := natskv.New(kv)
	ctx := context.Background()
	key := "provider_credentials:tenant_id:t1:id:r1:provider"

	for _, v := range []string{"sealed-v1", "sealed-v2"} {
		if err := c.Set(ctx, key, []byte(v), time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}

	entries, err := kv.History(ctx, natskv.Key(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		t.Fatalf("history: %v", err)
	}
	for _, e := range entries {
		if e.Operation() == jetstream.KeyValuePut {
			t.Errorf("revision %d still holds %q", e.Revision(), e.Value())
		}
	}
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Error("purged key still readable")
	}
}
