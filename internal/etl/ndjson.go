// Package etl implements the pipeline stages: filter, price extraction,
// external sort, streaming merge-join, historical load, and cleanup. Every
// stage consumes the previous stage's on-disk NDJSON artifact; no stage holds
// a full dataset in memory.
package etl

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// Feed entries and price trees can produce long lines; 16 MB covers the worst
// observed feed entry with room to spare.
const maxLineBytes = 16 * 1024 * 1024

// LineWriter writes one JSON document per line through a buffered writer.
type LineWriter struct {
	f   *os.File
	w   *bufio.Writer
	n   int64
	enc *json.Encoder
}

// NewLineWriter creates the output file, truncating any previous artifact.
func NewLineWriter(path string) (*LineWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ndjson: create %s", path)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	return &LineWriter{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

// Write appends one record as a JSON line.
func (lw *LineWriter) Write(v any) error {
	if err := lw.enc.Encode(v); err != nil {
		return eris.Wrap(err, "ndjson: encode record")
	}
	lw.n++
	return nil
}

// Count returns the number of records written so far.
func (lw *LineWriter) Count() int64 { return lw.n }

// Close flushes and closes the artifact.
func (lw *LineWriter) Close() error {
	if err := lw.w.Flush(); err != nil {
		_ = lw.f.Close()
		return eris.Wrap(err, "ndjson: flush")
	}
	if err := lw.f.Close(); err != nil {
		return eris.Wrap(err, "ndjson: close")
	}
	return nil
}

// LineReader iterates over an NDJSON artifact line by line.
type LineReader struct {
	f  *os.File
	sc *bufio.Scanner
}

// NewLineReader opens an NDJSON artifact for reading.
func NewLineReader(path string) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ndjson: open %s", path)
	}
	return &LineReader{f: f, sc: newScanner(f)}, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return sc
}

// Next returns the next non-empty line, or io.EOF when exhausted.
func (lr *LineReader) Next() ([]byte, error) {
	for lr.sc.Scan() {
		line := lr.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
	if err := lr.sc.Err(); err != nil {
		return nil, eris.Wrap(err, "ndjson: scan")
	}
	return nil, io.EOF
}

// Close closes the underlying file.
func (lr *LineReader) Close() error {
	return lr.f.Close()
}

// keyed is the minimal decode used wherever only the sort/join key matters.
type keyed struct {
	UUID string `json:"uuid"`
}

// lineKey extracts the uuid field from a JSON line. A missing or empty uuid is
// an error so malformed lines can be counted and dropped by the caller.
func lineKey(line []byte) (string, error) {
	var k keyed
	if err := json.Unmarshal(line, &k); err != nil {
		return "", eris.Wrap(err, "ndjson: parse line key")
	}
	if k.UUID == "" {
		return "", eris.New("ndjson: line has no uuid")
	}
	return k.UUID, nil
}
