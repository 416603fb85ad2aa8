// Package archive opens ZIP and 7z archives behind a single Reader interface
// and extracts them into a workspace directory.
package archive

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"tush00nka/unzipbot/internal/model"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrIllegalPath       = errors.New("illegal path in archive")
	ErrEntryNotFound     = errors.New("entry not found in archive")
	ErrDuplicateEntry    = errors.New("duplicate entry name")
)

// Entries is the enumerated result of an archive or of an extraction
// directory. List order is stable for the lifetime of the value.
type Entries interface {
	List() []model.ExtractedEntry
	Open(path string) (io.ReadCloser, error)
}

// Reader is an Entries backed directly by archive bytes. Skipped lists the
// members that never made it into List: names escaping the archive root and
// repeated names. Both storage modes report them the same way.
type Reader interface {
	Entries
	Format() model.Format
	Skipped() []model.EntryFailure
}

// NewReader opens the archive in r using the reader for format.
func NewReader(format model.Format, r io.ReaderAt, size int64) (Reader, error) {
	switch format {
	case model.FormatZip:
		return newZipReader(r, size)
	case model.FormatSevenZip:
		return newSevenZipReader(r, size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Files returns the non-directory entries of e in List order.
func Files(e Entries) []model.ExtractedEntry {
	all := e.List()
	files := make([]model.ExtractedEntry, 0, len(all))
	for _, entry := range all {
		if entry.IsDir {
			continue
		}
		files = append(files, entry)
	}
	return files
}

// memberIndex is the listing shared by the archive readers.
type memberIndex struct {
	entries []model.ExtractedEntry
	skipped []model.EntryFailure
	seen    map[string]struct{}
}

// add reports the cleaned name under which the member is served, or false
// when the member is dropped.
func (ix *memberIndex) add(raw string, size int64, isDir bool) (string, bool) {
	name := cleanName(raw)
	if name == "" || name == "." {
		return "", false
	}
	if name == ".." || strings.HasPrefix(name, "../") {
		if !isDir {
			ix.skipped = append(ix.skipped, model.EntryFailure{Path: raw, Reason: ErrIllegalPath.Error()})
		}
		return "", false
	}
	if _, dup := ix.seen[name]; dup {
		if !isDir {
			ix.skipped = append(ix.skipped, model.EntryFailure{Path: name, Reason: ErrDuplicateEntry.Error()})
		}
		return "", false
	}

	if ix.seen == nil {
		ix.seen = make(map[string]struct{})
	}
	ix.seen[name] = struct{}{}
	ix.entries = append(ix.entries, model.ExtractedEntry{Path: name, Size: size, IsDir: isDir})
	return name, true
}

func (ix *memberIndex) List() []model.ExtractedEntry {
	return ix.entries
}

func (ix *memberIndex) Skipped() []model.EntryFailure {
	return ix.skipped
}

// cleanName normalizes an archive member name to a slash separated relative
// path. Names that climb out of the archive root keep their ".." prefix so
// that SafeJoin can reject them.
func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return ""
	}
	return path.Clean(name)
}

func sortEntries(entries []model.ExtractedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
}
