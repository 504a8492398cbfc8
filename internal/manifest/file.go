package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const maxLine = 1 << 20

// WriteAtomic writes lines to a temp file in the target directory and
// renames it over path.
func WriteAtomic(path string, lines []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, l := range lines {
		if _, err := w.WriteString(l + "\n"); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteManifest writes records as manifest lines.
func WriteManifest(path string, recs []Record) error {
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = r.String()
	}
	return WriteAtomic(path, lines)
}

// WriteText writes the transcript-only companion file, one line per record.
func WriteText(path string, recs []Record) error {
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = r.Text
	}
	return WriteAtomic(path, lines)
}

func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// ReadManifest parses every non-empty line of path.
func ReadManifest(path string) ([]Record, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(lines))
	for i, l := range lines {
		if l == "" {
			continue
		}
		r, err := ParseRecord(l)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		recs = append(recs, r)
	}
	return recs, nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func missing(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
