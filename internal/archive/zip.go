package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Zip archives the tree under contentDir into a zip file at outPath. Entry
// names are prefixed with memberBase, so extracting the archive yields a
// directory of that name with the original relative layout inside. An empty
// contentDir produces a valid empty archive. Member order follows the
// filesystem walk and is not load-bearing.
func Zip(fsys afero.Fs, contentDir, memberBase, outPath string) error {
	out, err := fsys.Create(outPath)
	if err != nil {
		return fmt.Errorf("create archive file failed: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = afero.Walk(fsys, contentDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(contentDir, p)
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = path.Join(memberBase, filepath.ToSlash(rel))
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("archive %s failed: %w", contentDir, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive failed: %w", err)
	}
	return out.Close()
}

// Unzip extracts an archive produced by Zip into targetDir, refusing entries
// that would escape it.
func Unzip(fsys afero.Fs, zipPath, targetDir string) error {
	f, err := fsys.Open(zipPath)
	if err != nil {
		return fmt.Errorf("open archive failed: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive failed: %w", err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("read archive failed: %w", err)
	}

	for _, entry := range zr.File {
		if err := extractEntry(fsys, entry, targetDir); err != nil {
			return fmt.Errorf("extract %s failed: %w", entry.Name, err)
		}
	}
	return nil
}

func extractEntry(fsys afero.Fs, entry *zip.File, targetDir string) error {
	target := filepath.Join(targetDir, filepath.FromSlash(entry.Name))
	if !strings.HasPrefix(target, filepath.Clean(targetDir)+string(os.PathSeparator)) {
		return fmt.Errorf("entry path is outside the target directory")
	}
	if entry.FileInfo().IsDir() {
		return fsys.MkdirAll(target, 0o755)
	}
	if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fsys.Create(target)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
