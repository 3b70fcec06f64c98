package executor

import (
	"io/fs"
	"os"
	"path/filepath"
)

// collectOutputs walks dir and returns its regular files in lexical order.
// Files larger than maxBytes (when maxBytes > 0) are returned in skipped.
// Symlinks are ignored so a snippet cannot point uploads outside its workspace.
func collectOutputs(dir string, maxBytes int64) (files []OutputFile, skipped []string, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir && os.IsNotExist(walkErr) {
				return fs.SkipDir
			}
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if maxBytes > 0 && info.Size() > maxBytes {
			skipped = append(skipped, name)
			return nil
		}
		files = append(files, OutputFile{Name: name, Path: path, Size: info.Size()})
		return nil
	})
	return files, skipped, err
}
