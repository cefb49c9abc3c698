package credential

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Strob0t/CredForge/internal/domain"
)

// prefixCodec is a reversible stand-in for the tenant encrypter.
type prefixCodec struct {
	decryptCalls int
}

func (p *prefixCodec) EncryptToken(_ context.Context, tenantID, plaintext string) (string, error) {
	return "enc:" + tenantID + ":" + plaintext, nil
}

func (p *prefixCodec) DecryptToken(ctx context.Context, tenantID, token string) (string, error) {
	out, err := p.DecryptTokens(ctx, tenantID, []string{token})
	if err != nil {
		return "", err
	}
	return out[0], nil
}

func (p *prefixCodec) DecryptTokens(_ context.Context, tenantID string, tokens []string) ([]string, error) {
	p.decryptCalls++
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		rest, ok := strings.CutPrefix(tok, "enc:"+tenantID+":")
		if !ok {
			return nil, errors.New("bad token")
		}
		out[i] = rest
	}
	return out, nil
}

func TestMask(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sk-ABCDEFGHIJKL", "sk-A****IJKL"},
		{"short1", "****ort1"},
		{"12345678", "****5678"},
		{"123456789", "1234****6789"},
		{"abcd", "****abcd"},
		{"ab", "******ab"},
		{"", "********"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedact_MasksOnlySecrets(t *testing.T) {
	c := Credentials{
		"api_key":      "sk-ABCDEFGHIJKL",
		"endpoint_url": "https://api.example.com",
		"org":          42.0,
	}
	got := Redact(c, []string{"api_key", "missing"})
	want := Credentials{
		"api_key":      "sk-A****IJKL",
		"endpoint_url": "https://api.example.com",
		"org":          42.0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Redact mismatch (-want +got):\n%s", diff)
	}
	if c["api_key"] != "sk-ABCDEFGHIJKL" {
		t.Fatal("Redact must not modify the input map")
	}
}

func TestRedact_DeepCopy(t *testing.T) {
	c := Credentials{
		"api_key": "sk-ABCDEFGHIJKL",
		"headers": map[string]any{"x-org": "acme"},
	}
	got := Redact(c, []string{"api_key"})
	got["headers"].(map[string]any)["x-org"] = "changed"
	if c["headers"].(map[string]any)["x-org"] != "acme" {
		t.Fatal("redacted copy aliases a nested map of the original")
	}
}

func TestRedactRestoreIdempotence(t *testing.T) {
	secretVars := []string{"api_key", "pin"}
	inputs := []Credentials{
		{"api_key": "sk-ABCDEFGHIJKL", "pin": "12"},
		{"api_key": "short1", "base": "x"},
		{"api_key": ""},
		{},
	}
	codec := &prefixCodec{}
	for _, c := range inputs {
		redacted := Redact(c, secretVars)
		restored, err := Restore(context.Background(), redacted, Credentials{}, secretVars, codec, "t1")
		if err != nil {
			t.Fatalf("Restore: %v", err)
		}
		if diff := cmp.Diff(redacted, Redact(restored, secretVars)); diff != "" {
			t.Fatalf("redact(restore(redact(C))) != redact(C) (-want +got):\n%s", diff)
		}
	}
	if codec.decryptCalls != 0 {
		t.Fatalf("restore of non-sentinel values must not decrypt, got %d calls", codec.decryptCalls)
	}
}

func TestRestore_HiddenValue(t *testing.T) {
	ctx := context.Background()
	codec := &prefixCodec{}
	stored, err := EncryptSecrets(ctx, Credentials{"api_key": "sk-original", "base": "u"}, []string{"api_key"}, codec, "t1")
	if err != nil {
		t.Fatal(err)
	}

	got, err := Restore(ctx, Credentials{"api_key": HiddenValue, "base": "v"}, stored, []string{"api_key"}, codec, "t1")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	want := Credentials{"api_key": "sk-original", "base": "v"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Restore mismatch (-want +got):\n%s", diff)
	}
}

func TestRestore_MissingSecret(t *testing.T) {
	_, err := Restore(context.Background(), Credentials{"api_key": HiddenValue}, nil, []string{"api_key"}, &prefixCodec{}, "t1")
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatal("ErrMissingSecret must be a validation error")
	}
}

func TestIsMasked(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{Mask("sk-ABCDEFGHIJKL"), true},
		{Mask("short1"), true},
		{Mask("ab"), true},
		{"sk-ABCDEFGHIJKL", false},
		{"12345678", false},
		{"sk-A***IJKL", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsMasked(tt.in); got != tt.want {
			t.Errorf("IsMasked(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRestoreMasked(t *testing.T) {
	ctx := context.Background()
	codec := &prefixCodec{}
	stored, err := EncryptSecrets(ctx, Credentials{"api_key": "sk-ABCDEFGHIJKL", "org": "o"}, []string{"api_key"}, codec, "t1")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		in      Credentials
		stored  Credentials
		want    Credentials
		wantErr error
	}{
		{
			name:   "mask of stored value",
			in:     Credentials{"api_key": "sk-A****IJKL", "org": "o2"},
			stored: stored,
			want:   Credentials{"api_key": "sk-ABCDEFGHIJKL", "org": "o2"},
		},
		{
			name:   "new secret passes through",
			in:     Credentials{"api_key": "sk-ZZZZZZZZZZZZ"},
			stored: stored,
			want:   Credentials{"api_key": "sk-ZZZZZZZZZZZZ"},
		},
		{
			name:    "mask of another value",
			in:      Credentials{"api_key": "sk-B****IJKL"},
			stored:  stored,
			wantErr: ErrMaskedSecret,
		},
		{
			name:    "mask without stored value",
			in:      Credentials{"api_key": "sk-A****IJKL"},
			wantErr: ErrMaskedSecret,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RestoreMasked(ctx, tt.in, tt.stored, []string{"api_key"}, codec, "t1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected %v as a validation error, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RestoreMasked: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("RestoreMasked mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncryptSecrets_RejectsMaskedValue(t *testing.T) {
	_, err := EncryptSecrets(context.Background(), Credentials{"api_key": Mask("sk-ABCDEFGHIJKL")}, []string{"api_key"}, &prefixCodec{}, "t1")
	if !errors.Is(err, ErrMaskedSecret) {
		t.Fatalf("expected ErrMaskedSecret, got %v", err)
	}
}

func TestEncryptDecryptSecrets_PerField(t *testing.T) {
	ctx := context.Background()
	codec := &prefixCodec{}
	plain := Credentials{"api_key": "sk-1", "secret_key": "sk-2", "region": "eu"}
	vars := []string{"api_key", "secret_key"}

	enc, err := EncryptSecrets(ctx, plain, vars, codec, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if enc["region"] != "eu" {
		t.Fatal("non-secret fields must stay in plaintext")
	}
	if enc["api_key"] == "sk-1" || enc["secret_key"] == "sk-2" {
		t.Fatal("secret fields must be encrypted")
	}

	dec, err := DecryptSecrets(ctx, enc, vars, codec, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(plain, dec); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if codec.decryptCalls != 1 {
		t.Fatalf("expected one batched decrypt call, got %d", codec.decryptCalls)
	}
}

func TestEncryptSecrets_RejectsHiddenValue(t *testing.T) {
	_, err := EncryptSecrets(context.Background(), Credentials{"api_key": HiddenValue}, []string{"api_key"}, &prefixCodec{}, "t1")
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	c, err := Unmarshal(nil)
	if err != nil || len(c) != 0 {
		t.Fatalf("empty column: got %v, %v", c, err)
	}
	if _, err := Unmarshal([]byte("{bad")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
