package resthelper

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/hashes"
)

// typeDir is the local directory holding this type's documents.
func (h *Helper) typeDir() string {
	return filepath.Join(h.dir, h.desc.Name)
}

// localPath resolves an item's on-disk location. Item paths are stored
// slash-separated and relative to the working directory root.
func (h *Helper) localPath(item artifact.Item) string {
	if item.Path != "" {
		return filepath.Join(h.dir, filepath.FromSlash(item.Path))
	}
	return filepath.Join(h.typeDir(), item.ID+h.desc.Extension)
}

// DoesDirectoryExist reports whether the type's local directory exists.
func (h *Helper) DoesDirectoryExist(_ *artifact.Context) bool {
	info, err := os.Stat(h.typeDir())
	return err == nil && info.IsDir()
}

// ListLocalItems walks the type directory and loads every document.
// The modification marker of a local item is its content hash, so the
// change store detects edits regardless of file timestamps. Local
// enumeration is not paginated; offset and limit apply to the remote
// side only.
func (h *Helper) ListLocalItems(_ context.Context, _ *artifact.Context, opts artifact.ListOptions) ([]artifact.Item, error) {
	root := h.typeDir()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var items []artifact.Item
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), h.desc.Extension) {
			return nil
		}

		rel, err := filepath.Rel(h.dir, path)
		if err != nil {
			return err
		}
		item, err := h.loadLocal(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if opts.Path != "" && h.desc.PathBased && !strings.HasPrefix(item.Path, opts.Path) {
			return nil
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate local %s: %w", h.desc.Name, err)
	}
	return items, nil
}

// ListLocalModifiedItems enumerates local items with their content-hash
// markers; the orchestrator filters them against the change store.
func (h *Helper) ListLocalModifiedItems(ctx context.Context, actx *artifact.Context, opts artifact.ListOptions) ([]artifact.Item, error) {
	return h.ListLocalItems(ctx, actx, opts)
}

// ListNames lists the display names of the local items.
func (h *Helper) ListNames(ctx context.Context, actx *artifact.Context, opts artifact.ListOptions) ([]string, error) {
	items, err := h.ListLocalItems(ctx, actx, opts)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = it.Path
		}
		names = append(names, name)
	}
	return names, nil
}

// loadLocal reads one document by its slash-separated relative path.
func (h *Helper) loadLocal(relPath string) (artifact.Item, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, filepath.FromSlash(relPath)))
	if err != nil {
		return artifact.Item{}, fmt.Errorf("failed to read local %s %s: %w", h.desc.ArtifactName, relPath, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return artifact.Item{}, fmt.Errorf("failed to parse local %s %s: %w", h.desc.ArtifactName, relPath, err)
	}

	item := itemFromPayload(doc)
	item.Path = relPath
	item.MD5 = hashes.MD5Sum(data)
	item.Modified = item.MD5
	return item, nil
}

// readLocal loads the document backing an item about to be pushed.
func (h *Helper) readLocal(item artifact.Item) (artifact.Item, error) {
	loaded, err := h.loadLocal(item.Path)
	if err != nil {
		return artifact.Item{}, err
	}
	if loaded.ID == "" {
		loaded.ID = item.ID
	}
	return loaded, nil
}

// writeLocal persists a pulled item's document.
func (h *Helper) writeLocal(item artifact.Item) error {
	path := h.localPath(item)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", item.Path, err)
	}

	data, err := json.MarshalIndent(item.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", h.desc.ArtifactName, item.Path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write local %s %s: %w", h.desc.ArtifactName, item.Path, err)
	}
	return nil
}

// DeleteLocalItem removes the local document for an item.
func (h *Helper) DeleteLocalItem(_ context.Context, _ *artifact.Context, item artifact.Item) error {
	if err := os.Remove(h.localPath(item)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove local %s %s: %w", h.desc.ArtifactName, item.Path, err)
	}
	return nil
}

// DeleteLocalResource removes the binary resource backing an item, when
// one exists. Resources are content-addressed under resources/ by hash.
func (h *Helper) DeleteLocalResource(_ context.Context, _ *artifact.Context, item artifact.Item) error {
	if item.MD5 == "" {
		return nil
	}
	path := filepath.Join(h.dir, "resources", item.MD5)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove resource for %s: %w", item.Path, err)
	}
	return nil
}
