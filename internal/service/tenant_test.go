package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Strob0t/CredForge/internal/crypto"
	"github.com/Strob0t/CredForge/internal/domain"
)

// memKeyWriter records private keys written during provisioning.
type memKeyWriter struct {
	keys map[string]string
	err  error
}

func (w *memKeyWriter) WritePrivateKey(_ context.Context, tenantID, pem string) error {
	if w.err != nil {
		return w.err
	}
	if w.keys == nil {
		w.keys = map[string]string{}
	}
	w.keys[tenantID] = pem
	return nil
}

func newTestTenantService() (*TenantService, *mockStore, *memKeyWriter) {
	store := newMockStore()
	keys := &memKeyWriter{}
	svc := NewTenantService(store, keys)
	svc.keyBits = 1024
	return svc, store, keys
}

func TestTenantCreate(t *testing.T) {
	svc, _, _ := newTestTenantService()
	ctx := context.Background()

	got, err := svc.Create(ctx, "  acme ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Name != "acme" || !got.Enabled {
		t.Errorf("unexpected tenant: %+v", got)
	}

	for _, name := range []string{"", "   ", strings.Repeat("x", maxTenantNameLen+1)} {
		if _, err := svc.Create(ctx, name); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Create(%q) error = %v, want ErrValidation", name, err)
		}
	}
}

func TestProvisionKeyPair(t *testing.T) {
	svc, store, keys := newTestTenantService()
	ctx := context.Background()
	tn, err := svc.Create(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.ProvisionKeyPair(ctx, tn.ID, false); err != nil {
		t.Fatalf("ProvisionKeyPair: %v", err)
	}

	stored, err := store.GetTenant(ctx, tn.ID)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := crypto.ParsePublicKey(stored.EncryptPublicKey)
	if err != nil {
		t.Fatalf("stored public key: %v", err)
	}
	priv, err := crypto.ParsePrivateKey(keys.keys[tn.ID])
	if err != nil {
		t.Fatalf("written private key: %v", err)
	}
	if !priv.PublicKey.Equal(pub) {
		t.Fatal("public key does not match private key")
	}

	if err := svc.ProvisionKeyPair(ctx, tn.ID, false); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second provision error = %v, want ErrConflict", err)
	}
	if err := svc.ProvisionKeyPair(ctx, tn.ID, true); err != nil {
		t.Fatalf("forced provision: %v", err)
	}
	replaced, _ := store.GetTenant(ctx, tn.ID)
	if replaced.EncryptPublicKey == stored.EncryptPublicKey {
		t.Error("forced provision kept the old public key")
	}
}

func TestProvisionKeyPairWriteFailureKeepsTenantUnkeyed(t *testing.T) {
	svc, store, keys := newTestTenantService()
	ctx := context.Background()
	tn, _ := svc.Create(ctx, "acme")
	keys.err = errors.New("disk full")

	if err := svc.ProvisionKeyPair(ctx, tn.ID, false); err == nil {
		t.Fatal("expected error")
	}
	got, _ := store.GetTenant(ctx, tn.ID)
	if got.HasKeyPair() {
		t.Error("public key published without a private key")
	}
}

func TestProvisionKeyPairUnknownTenant(t *testing.T) {
	svc, _, _ := newTestTenantService()
	err := svc.ProvisionKeyPair(context.Background(), "missing", false)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestValidateExists(t *testing.T) {
	svc, _, _ := newTestTenantService()
	ctx := context.Background()
	tn, _ := svc.Create(ctx, "acme")

	if err := svc.ValidateExists(ctx, tn.ID); err != nil {
		t.Errorf("ValidateExists: %v", err)
	}
	if err := svc.ValidateExists(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing tenant error = %v", err)
	}
}
