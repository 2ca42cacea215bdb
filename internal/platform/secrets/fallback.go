package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fallbackFile serves secrets from a local "secret://name[?version=n]=value" file for
// development and Secret Manager outages. It is read once, on first use.
type fallbackFile struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

func (f *fallbackFile) lookup(ref reference, version string) (string, bool, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return "", false, f.err
	}
	if value, ok := f.values[ref.versionKey(version)]; ok {
		return value, true, nil
	}
	value, ok := f.values[ref.canonical]
	return value, ok, nil
}

func (f *fallbackFile) load() {
	f.values = make(map[string]string)
	if f.path == "" {
		return
	}
	path := f.path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return
	case err != nil:
		f.err = fmt.Errorf("secrets: unable to open fallback file %s: %w", path, err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := cutEntry(line)
		if !ok {
			continue
		}
		ref, err := parseReference(key)
		if err != nil {
			continue
		}
		version := ref.version
		if version == "" {
			version = latestVersion
		}
		f.values[ref.canonical] = value
		f.values[ref.versionKey(version)] = value
	}
	if err := scanner.Err(); err != nil {
		f.err = fmt.Errorf("secrets: failed reading %s: %w", path, err)
	}
}

// cutEntry splits "secret://name?version=2&project=p=value" after the reference. Query
// parameters are "k=v" pairs joined by '&', so the separator is the first '=' that follows a
// complete parameter.
func cutEntry(line string) (string, string, bool) {
	sep := strings.IndexByte(line, '=')
	if q := strings.IndexByte(line, '?'); q >= 0 && (sep < 0 || q < sep) {
		sep = -1
		for i := q + 1; i < len(line); {
			eq := strings.IndexByte(line[i:], '=')
			if eq < 0 {
				break
			}
			next := strings.IndexAny(line[i+eq+1:], "&=")
			if next < 0 {
				break
			}
			at := i + eq + 1 + next
			if line[at] == '=' {
				sep = at
				break
			}
			i = at + 1
		}
	}
	if sep < 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:sep])
	return key, strings.TrimSpace(line[sep+1:]), key != ""
}
