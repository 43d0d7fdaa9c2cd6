package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunArtifactStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	secure := mw(underlying)

	ctx := context.Background()
	artifact := []byte(`{"secret": "my-secret-sauce"}`)

	// 1. Write
	if err := secure.Write(ctx, "checkpoint", artifact); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// 2. Underlying store holds only the envelope
	stored, err := underlying.Read(ctx, "checkpoint")
	if err != nil {
		t.Fatalf("Underlying read failed: %v", err)
	}
	if strings.Contains(string(stored), "my-secret-sauce") {
		t.Fatalf("Expected secret to be hidden, found: %s", stored)
	}
	if !strings.Contains(string(stored), "__encrypted__") {
		t.Fatal("Expected __encrypted__ envelope")
	}

	// 3. Read via middleware
	loaded, err := secure.Read(ctx, "checkpoint")
	if err != nil {
		t.Fatalf("Read via middleware failed: %v", err)
	}
	if string(loaded) != string(artifact) {
		t.Errorf("Expected %s, got %s", artifact, loaded)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	// 1. Write with OLD key
	old := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	if err := old.Write(ctx, "state_0", []byte(`{"data": "old"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// 2. NEW key alone cannot read it
	fresh := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})(underlying)
	if _, err := fresh.Read(ctx, "state_0"); err == nil {
		t.Fatal("Expected decryption to fail without the old key")
	}

	// 3. NEW key with OLD as fallback can
	rotated := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)
	data, err := rotated.Read(ctx, "state_0")
	if err != nil {
		t.Fatalf("Read with fallback failed: %v", err)
	}
	if string(data) != `{"data": "old"}` {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestEncryptionMiddleware_RejectsPlainArtifacts(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	_ = underlying.Write(ctx, "checkpoint", []byte(`{"count": 1}`))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	if _, err := secure.Read(ctx, "checkpoint"); err == nil {
		t.Fatal("Expected plain artifact to be rejected")
	}
}

func TestEncryptionMiddleware_KeyLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Expected panic for short key")
		}
	}()
	middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
}
