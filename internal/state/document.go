// Package state owns the hot shared document: a single JSON document of
// aggregate swarm state, mutated by many independent instances through
// read-modify-write with the remote-wins conflict policy. Raw map access is
// never exposed outside a transform.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gitclaw/core/internal/gitstore"
)

// Transform mutates the document in place. Transforms must tolerate missing
// keys: a fresh document is an empty map.
type Transform func(doc map[string]any)

type DocumentStore struct {
	store *gitstore.Store
	path  string
}

func NewDocumentStore(store *gitstore.Store, path string) *DocumentStore {
	return &DocumentStore{store: store, path: path}
}

// Load returns the latest pushed revision of the document. An absent or
// unparseable document is a fresh empty one, never an error.
func (d *DocumentStore) Load(ctx context.Context) map[string]any {
	if err := d.store.PullLatest(); err != nil {
		log.Printf("state: pull before read failed, using local copy: %v", err)
	}
	return d.read()
}

// Update reads the current document, applies transform, and persists the
// result onto the hot document path. Concurrent updates race; the loser's
// change can be dropped by the remote-wins policy, so exact arithmetic needs
// a read-after-write re-check or tolerance for drift.
func (d *DocumentStore) Update(ctx context.Context, transform Transform) error {
	if err := d.store.PullLatest(); err != nil {
		log.Printf("state: pull before update failed, using local copy: %v", err)
	}

	doc := d.read()
	transform(doc)

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state document: %w", err)
	}

	return d.store.Persist(ctx, gitstore.FileWrite{
		Path:    d.path,
		Content: append(payload, '\n'),
		Mode:    gitstore.OverwriteRemoteWins,
	}, "Update state")
}

func (d *DocumentStore) read() map[string]any {
	content, err := d.store.ReadFile(d.path)
	if err != nil {
		log.Printf("state: read %s failed, starting from empty document: %v", d.path, err)
		return map[string]any{}
	}
	if len(content) == 0 {
		return map[string]any{}
	}

	var doc map[string]any
	if err := json.Unmarshal(content, &doc); err != nil {
		log.Printf("state: %s is corrupt, starting from empty document: %v", d.path, err)
		return map[string]any{}
	}
	if doc == nil {
		return map[string]any{}
	}
	return doc
}
