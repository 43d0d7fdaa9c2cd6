package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aretw0/arbor/internal/state"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// SessionInfo summarizes a session from its cursor.
type SessionInfo struct {
	ID       string
	Workflow string
	Status   domain.Status
	Pending  string
	Index    int
}

// ListSessions returns every session recorded in store, sorted by ID.
func ListSessions(ctx context.Context, store ports.ArtifactStore) ([]SessionInfo, error) {
	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []SessionInfo
	for _, key := range keys {
		id, ok := strings.CutSuffix(key, "/"+state.CursorKey)
		if !ok {
			continue
		}
		data, err := store.Read(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", id, err)
		}
		cur := gjson.ParseBytes(data)
		out = append(out, SessionInfo{
			ID:       id,
			Workflow: cur.Get("workflow").String(),
			Status:   domain.Status(cur.Get("status").String()),
			Pending:  cur.Get("pending").String(),
			Index:    int(cur.Get("index").Int()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InspectSession writes the cursor of a session and the snapshot it points
// at to w as indented JSON.
func InspectSession(ctx context.Context, store ports.ArtifactStore, sessionID string, w io.Writer) error {
	ns := ports.Namespace(store, sessionID)
	cursor, err := ns.Read(ctx, state.CursorKey)
	if err != nil {
		return fmt.Errorf("session %q: %w", sessionID, err)
	}

	doc := map[string]json.RawMessage{"cursor": cursor}
	index := gjson.GetBytes(cursor, "index").Int()
	if snap, err := ns.Read(ctx, fmt.Sprintf("%s%d", state.SnapshotPrefix, index)); err == nil {
		doc["state"] = snap
	} else if cp, err := ns.Read(ctx, state.CheckpointKey); err == nil {
		doc["state"] = cp
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}

// RemoveSession deletes every artifact of a session. Removing an unknown
// session reports domain.ErrSessionNotFound.
func RemoveSession(ctx context.Context, store ports.ArtifactStore, sessionID string) error {
	ns := ports.Namespace(store, sessionID)
	keys, err := ns.List(ctx, "")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return clearSession(ctx, store, sessionID)
}
