package workspace

import (
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileEntry is one uploaded file together with the relative path the
// submission supplied for it. Path uses forward slashes.
type FileEntry struct {
	Path string
	Data []byte
}

// Builder materializes uploaded entries into scratch directories on an
// abstract filesystem, so the upload flow can run against the OS filesystem
// in production and an in-memory one in tests.
type Builder struct {
	fs afero.Fs
}

func NewBuilder(fs afero.Fs) *Builder {
	return &Builder{fs: fs}
}

// Workspace is one materialized category subtree. It is owned by a single
// request; Cleanup must run on every exit path.
type Workspace struct {
	fs   afero.Fs
	root string
	dir  string
}

// Dir returns the directory holding the materialized files. Its base name is
// the member base passed to Materialize.
func (w *Workspace) Dir() string { return w.dir }

// Cleanup removes the whole scratch root. Failures are logged, not returned:
// a leaked scratch directory must never mask the outcome of the request.
func (w *Workspace) Cleanup() {
	if err := w.fs.RemoveAll(w.root); err != nil {
		log.Printf("workspace cleanup failed for %s: %v", w.root, err)
	}
}

// Materialize writes entries under a fresh scratch root, in a directory named
// memberBase. With preservePaths set, each entry keeps its full relative path
// and intermediate directories are created; otherwise only the base name is
// used. Duplicate paths within one call resolve to the last write. Zero
// entries yield an empty directory, which still archives to a valid archive.
func (b *Builder) Materialize(memberBase string, entries []FileEntry, preservePaths bool) (*Workspace, error) {
	root, err := afero.TempDir(b.fs, "", "dataset-upload-")
	if err != nil {
		return nil, fmt.Errorf("create scratch root failed: %w", err)
	}
	ws := &Workspace{fs: b.fs, root: root, dir: filepath.Join(root, memberBase)}

	if err := b.fs.MkdirAll(ws.dir, 0o755); err != nil {
		ws.Cleanup()
		return nil, fmt.Errorf("create category dir failed: %w", err)
	}

	for _, entry := range entries {
		rel, err := relativePath(entry.Path, preservePaths)
		if err != nil {
			ws.Cleanup()
			return nil, err
		}
		target := filepath.Join(ws.dir, filepath.FromSlash(rel))
		if err := b.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			ws.Cleanup()
			return nil, fmt.Errorf("create parent dir for %s failed: %w", rel, err)
		}
		if err := afero.WriteFile(b.fs, target, entry.Data, 0o644); err != nil {
			ws.Cleanup()
			return nil, fmt.Errorf("write %s failed: %w", rel, err)
		}
	}
	return ws, nil
}

// relativePath normalizes a submission path and rejects anything that would
// escape the workspace.
func relativePath(p string, preservePaths bool) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if !preservePaths {
		p = path.Base(p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == "/" || path.IsAbs(cleaned) ||
		cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("file path is outside the workspace: %s", p)
	}
	return cleaned, nil
}
