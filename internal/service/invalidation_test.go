package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Strob0t/CredForge/internal/port/messagequeue"
)

func publishInvalidation(t *testing.T, q *recordingQueue, p messagequeue.CredentialsInvalidatePayload) error {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return q.handler(context.Background(), messagequeue.SubjectCredentialsInvalidate, data)
}

func TestInvalidationSubscriber(t *testing.T) {
	q := &recordingQueue{}
	local := newMemCache()
	key := CredentialsCacheKey{TenantID: testTenantID, IdentityID: "rec-1", CacheType: CacheTypeProvider}.String()
	local.data[key] = []byte("sealed")

	stop, err := NewInvalidationSubscriber(q, local, "node-b").Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stop()

	// Own broadcasts are ignored.
	if err := publishInvalidation(t, q, messagequeue.CredentialsInvalidatePayload{
		TenantID: testTenantID, IdentityID: "rec-1", CacheType: "provider", Origin: "node-b",
	}); err != nil {
		t.Fatal(err)
	}
	if _, ok := local.data[key]; !ok {
		t.Fatal("own invalidation dropped the entry")
	}

	if err := publishInvalidation(t, q, messagequeue.CredentialsInvalidatePayload{
		TenantID: testTenantID, IdentityID: "rec-1", CacheType: "provider", Origin: "node-a",
	}); err != nil {
		t.Fatal(err)
	}
	if _, ok := local.data[key]; ok {
		t.Error("entry survived remote invalidation")
	}
}

func TestInvalidationSubscriber_BadPayload(t *testing.T) {
	q := &recordingQueue{}
	if _, err := NewInvalidationSubscriber(q, newMemCache(), "node-b").Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := q.handler(context.Background(), messagequeue.SubjectCredentialsInvalidate, []byte("{")); err == nil {
		t.Error("expected decode error")
	}
}
