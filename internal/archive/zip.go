package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"

	"tush00nka/unzipbot/internal/model"
)

type zipReader struct {
	memberIndex
	files map[string]*zip.File
}

func newZipReader(r io.ReaderAt, size int64) (*zipReader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	reader := &zipReader{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		name, ok := reader.add(f.Name, int64(f.UncompressedSize64), f.FileInfo().IsDir())
		if ok {
			reader.files[name] = f
		}
	}
	sortEntries(reader.entries)

	return reader, nil
}

func (z *zipReader) Format() model.Format {
	return model.FormatZip
}

func (z *zipReader) Open(name string) (io.ReadCloser, error) {
	f, ok := z.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %s: %w", name, err)
	}
	return rc, nil
}
