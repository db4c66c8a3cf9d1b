package host

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileInfo describes a war-room file resolved from its entry id.
type FileInfo struct {
	Path string
	Name string
}

// FileResolver maps an entry id to a local file.
type FileResolver interface {
	FilePath(entryID string) (FileInfo, error)
}

// DirResolver resolves entry ids to files named after them in a directory.
type DirResolver struct {
	Dir string
}

// FilePath returns the file <Dir>/<entryID>.
func (r DirResolver) FilePath(entryID string) (FileInfo, error) {
	p := filepath.Join(r.Dir, filepath.Base(entryID))
	if _, err := os.Stat(p); err != nil {
		return FileInfo{}, fmt.Errorf("entry %s: %w", entryID, err)
	}
	return FileInfo{Path: p, Name: filepath.Base(p)}, nil
}

// MapResolver resolves entry ids from a fixed table.
type MapResolver map[string]FileInfo

// FilePath looks the entry id up.
func (m MapResolver) FilePath(entryID string) (FileInfo, error) {
	if fi, ok := m[entryID]; ok {
		return fi, nil
	}
	return FileInfo{}, fmt.Errorf("entry %s not found", entryID)
}
