package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
)

// Artifact keys.
const (
	SnapshotPrefix = "state_"
	CheckpointKey  = "checkpoint"
	CursorKey      = "cursor"
)

func snapshotKey(index int) string {
	return SnapshotPrefix + strconv.Itoa(index)
}

// SnapshotIndex parses a state_<index> key.
func SnapshotIndex(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, SnapshotPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Encode renders values as the indented JSON document stored in artifacts.
func Encode(values map[string]any) ([]byte, error) {
	return json.MarshalIndent(values, "", "  ")
}

// Decode parses an artifact and normalizes it against s. Every field s
// declares must be present.
func Decode(s *schema.Schema, data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	values, _ := schema.NormalizeValue(raw).(map[string]any)
	if values == nil {
		return nil, fmt.Errorf("decode artifact: not a document")
	}
	if err := schema.Validate(s, values); err != nil {
		return nil, fmt.Errorf("artifact does not match the state schema: %w", err)
	}
	return s.Normalize(values)
}

func (m *Manager) write(ctx context.Context, key string, values map[string]any) error {
	data, err := Encode(values)
	if err != nil {
		return err
	}
	return m.store.Write(ctx, key, data)
}

func (m *Manager) read(ctx context.Context, key string) (map[string]any, error) {
	data, err := m.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return Decode(m.schema, data)
}

// Cursor records where a run stopped so a new process can pick it up.
type Cursor struct {
	Workflow string        `json:"workflow"`
	Status   domain.Status `json:"status"`
	// Node is the last node that executed.
	Node string `json:"node,omitempty"`
	// Pending is the intervene node waiting for input.
	Pending string `json:"pending,omitempty"`
	// Index is the index of the last recorded snapshot.
	Index int `json:"index"`
}

// SaveCursor writes the cursor artifact.
func (m *Manager) SaveCursor(ctx context.Context, c Cursor) error {
	if m.store == nil {
		return nil
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := m.store.Write(ctx, CursorKey, data); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}

// LoadCursor reads the cursor artifact. A run that never persisted one
// yields domain.ErrArtifactNotFound.
func (m *Manager) LoadCursor(ctx context.Context) (*Cursor, error) {
	if m.store == nil {
		return nil, domain.ErrArtifactNotFound
	}
	data, err := m.store.Read(ctx, CursorKey)
	if err != nil {
		return nil, err
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return &c, nil
}
