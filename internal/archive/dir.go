package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"tush00nka/unzipbot/internal/model"
)

// Dir enumerates an extraction directory. Walk order is lexical.
type Dir struct {
	root    string
	entries []model.ExtractedEntry
}

func OpenDir(root string) (*Dir, error) {
	d := &Dir{root: root}

	err := filepath.WalkDir(root, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		entry := model.ExtractedEntry{Path: filepath.ToSlash(rel), IsDir: de.IsDir()}
		if !de.IsDir() {
			info, err := de.Info()
			if err != nil {
				return err
			}
			entry.Size = info.Size()
		}
		d.entries = append(d.entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return d, nil
}

func (d *Dir) List() []model.ExtractedEntry {
	return d.entries
}

func (d *Dir) Open(name string) (io.ReadCloser, error) {
	target, err := SafeJoin(d.root, name)
	if err != nil {
		return nil, err
	}
	return os.Open(target)
}
