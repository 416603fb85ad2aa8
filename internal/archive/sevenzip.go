package archive

import (
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"

	"tush00nka/unzipbot/internal/model"
)

type sevenZipReader struct {
	memberIndex
	files map[string]*sevenzip.File
}

func newSevenZipReader(r io.ReaderAt, size int64) (*sevenZipReader, error) {
	sr, err := sevenzip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open 7z: %w", err)
	}

	reader := &sevenZipReader{files: make(map[string]*sevenzip.File, len(sr.File))}
	for _, f := range sr.File {
		name, ok := reader.add(f.Name, int64(f.UncompressedSize), f.FileInfo().IsDir())
		if ok {
			reader.files[name] = f
		}
	}
	sortEntries(reader.entries)

	return reader, nil
}

func (s *sevenZipReader) Format() model.Format {
	return model.FormatSevenZip
}

func (s *sevenZipReader) Open(name string) (io.ReadCloser, error) {
	f, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open 7z entry %s: %w", name, err)
	}
	return rc, nil
}
