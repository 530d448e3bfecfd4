// Package csvio reads and writes typed CSV files. Writes go to a temp file
// in the target directory and are renamed into place.
package csvio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

const bom = "\ufeff"

// ReadOptions configures Read.
type ReadOptions struct {
	// Rename maps column names found in the file to the names the target
	// struct's csv tags expect.
	Rename map[string]string
	// Comma is the field delimiter. Default ','.
	Comma rune
}

// Read decodes every row of r into T. Columns without a matching field are
// ignored and fields without a column keep their zero value. An empty input
// yields no rows.
func Read[T any](r io.Reader, opts ReadOptions) ([]T, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csvio: read header")
	}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, bom))
		if to, ok := opts.Rename[h]; ok {
			h = to
		}
		header[i] = h
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, eris.Wrap(err, "csvio: new decoder")
	}

	var rows []T
	for {
		var row T
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csvio: decode row %d", len(rows)+1)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile opens path and decodes it with Read.
func ReadFile[T any](path string, opts ReadOptions) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csvio: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rows, err := Read[T](bufio.NewReader(f), opts)
	if err != nil {
		return nil, eris.Wrapf(err, "csvio: %s", path)
	}
	return rows, nil
}

// Write encodes rows as CSV with a header, even when rows is empty.
func Write[T any](w io.Writer, rows []T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false

	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		return eris.Wrap(err, "csvio: encode header")
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrapf(err, "csvio: encode row %d", i+1)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "csvio: flush")
}

// WriteFile atomically replaces path with rows encoded as CSV.
func WriteFile[T any](path string, rows []T) error {
	return WriteAtomic(path, func(w io.Writer) error {
		return Write(w, rows)
	})
}

// WriteAtomic writes to a temp file next to path and renames it over path
// once fn succeeds. Parent directories are created as needed.
func WriteAtomic(path string, fn func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "csvio: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "csvio: create temp for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	bw := bufio.NewWriter(tmp)
	if err := fn(bw); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "csvio: flush %s", path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "csvio: sync %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "csvio: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "csvio: rename into %s", path)
	}
	return nil
}
