package middleware_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	// Mask keys containing "password" or "ssn"
	secure := middleware.NewPIIMiddleware([]string{"password", "ssn"})(underlying)
	ctx := context.Background()

	artifact := []byte(`{
		"username": "jdoe",
		"user_password": "secret123",
		"attempts": 3,
		"details": {"address": "123 St", "ssn_number": "999-99-9999"},
		"messages": [{"role": "user", "password": "hunter2"}]
	}`)

	// 1. Write
	if err := secure.Write(ctx, "state_0", artifact); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// 2. Read back the stored copy
	stored, err := secure.Read(ctx, "state_0")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(stored, &doc); err != nil {
		t.Fatalf("stored artifact is not JSON: %v", err)
	}

	if doc["username"] != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if doc["user_password"] != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", doc["user_password"])
	}
	if doc["attempts"] != float64(3) {
		t.Errorf("Non-matching numbers must survive, got: %v", doc["attempts"])
	}

	details := doc["details"].(map[string]any)
	if details["ssn_number"] != middleware.Mask {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}
	if details["address"] != "123 St" {
		t.Error("Address shouldn't be masked")
	}

	msg := doc["messages"].([]any)[0].(map[string]any)
	if msg["password"] != middleware.Mask || msg["role"] != "user" {
		t.Errorf("Keys inside lists should be masked, got: %v", msg)
	}
}

func TestPIIMiddleware_PassThrough(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewPIIMiddleware([]string{"password"})(underlying)
	ctx := context.Background()

	if err := secure.Write(ctx, "raw", []byte("not json")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, _ := underlying.Read(ctx, "raw")
	if string(data) != "not json" {
		t.Errorf("non-JSON artifacts must pass through, got %s", data)
	}
}

func TestChain(t *testing.T) {
	underlying := memory.NewStore()
	store := middleware.Chain(underlying,
		middleware.NewPIIMiddleware([]string{"password"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}),
	)
	ctx := context.Background()

	if err := store.Write(ctx, "checkpoint", []byte(`{"password": "x"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := store.Read(ctx, "checkpoint")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var doc map[string]any
	_ = json.Unmarshal(data, &doc)
	if doc["password"] != middleware.Mask {
		t.Errorf("expected masked then encrypted artifact, got %s", data)
	}
}
