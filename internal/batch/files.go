package batch

import (
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
)

// Stdio is the path that selects standard input or output.
const Stdio = "-"

// OpenInput opens path for reading. Paths ending in .gz are decompressed.
func OpenInput(path string) (io.ReadCloser, error) {
	if path == Stdio || path == "" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open input")
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	return &gzipReadCloser{Reader: gz, file: f}, nil
}

// OpenOutput creates path for writing. Paths ending in .gz are compressed.
func OpenOutput(path string) (io.WriteCloser, error) {
	if path == Stdio || path == "" {
		return nopWriteCloser{Writer: os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create output")
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	return &gzipWriteCloser{Writer: pgzip.NewWriter(f), file: f}, nil
}

type gzipReadCloser struct {
	*pgzip.Reader
	file *os.File
}

func (r *gzipReadCloser) Close() error {
	err := r.Reader.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

type gzipWriteCloser struct {
	*pgzip.Writer
	file *os.File
}

func (w *gzipWriteCloser) Close() error {
	err := w.Writer.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
