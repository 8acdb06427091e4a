// Package journal writes the append-only memory logs. Entries are immutable
// once written; targets are category-scoped files that only ever grow.
package journal

import (
	"context"
	"fmt"
	"path"
	"time"

	"gitclaw/core/internal/gitstore"
)

type Journal struct {
	store *gitstore.Store
	dir   string
}

func New(store *gitstore.Store, memoryDir string) *Journal {
	return &Journal{store: store, dir: memoryDir}
}

// Append records a timestamped entry under <memoryDir>/<category>/<name>.
// The serialization matches the existing memory files: a rule, a bold UTC
// timestamp, then the body.
func (j *Journal) Append(ctx context.Context, category, name, body string) error {
	entry := fmt.Sprintf("\n---\n**[%s]**\n\n%s\n",
		time.Now().UTC().Format("2006-01-02 15:04:05 UTC"), body)

	target := path.Join(j.dir, category, name)
	err := j.store.Persist(ctx, gitstore.FileWrite{
		Path:    target,
		Content: []byte(entry),
		Mode:    gitstore.Append,
	}, fmt.Sprintf("Append %s/%s", category, name))
	if err != nil {
		return fmt.Errorf("append journal %s: %w", target, err)
	}
	return nil
}
