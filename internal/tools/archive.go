package tools

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/klauspost/compress/zip"
)

// Open returns a read handle for a regular file inside the guard.
func (f *Filesystem) Open(p string) (*os.File, fs.FileInfo, error) {
	resolved, err := f.guard.Resolve(p)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(resolved)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return file, info, nil
}

// WriteZip archives every file under dir into w and returns the file count.
// Entries are named relative to dir's parent, so the archive unpacks into a
// folder named like dir; the workspace root unpacks in place. Tool and
// dependency directories are skipped as in WalkFiles.
func (f *Filesystem) WriteZip(w io.Writer, dir string) (int, error) {
	dir = path.Clean(dir)
	info, err := f.Stat(dir)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", dir)
	}
	prefix := ""
	if dir != "." {
		prefix = path.Dir(dir)
		if prefix == "." {
			prefix = ""
		}
	}

	zw := zip.NewWriter(w)
	count := 0
	err = f.WalkFiles(dir, 0, func(rel string, d fs.DirEntry) error {
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(fi)
		if err != nil {
			return err
		}
		name := rel
		if prefix != "" {
			name = rel[len(prefix)+1:]
		}
		hdr.Name = name
		hdr.Method = zip.Deflate

		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, _, err := f.Open(rel)
		if err != nil {
			return err
		}
		defer src.Close()
		if _, err := io.Copy(dst, src); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return count, err
	}
	return count, zw.Close()
}
