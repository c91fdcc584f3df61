package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// Write atomically stores record as JSON at path. Paths ending in ".xz" are
// xz-compressed. It writes to a .tmp file first and renames on success.
func Write(path string, record any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	buffered := bufio.NewWriterSize(f, 1<<20)
	var w io.Writer = buffered
	var xzw *xz.Writer
	if strings.HasSuffix(path, ".xz") {
		xzw, err = xz.NewWriter(buffered)
		if err != nil {
			return fmt.Errorf("creating xz writer: %w", err)
		}
		w = xzw
	}
	if err := json.NewEncoder(w).Encode(record); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if xzw != nil {
		if err := xzw.Close(); err != nil {
			return fmt.Errorf("closing xz stream: %w", err)
		}
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("flushing snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}
