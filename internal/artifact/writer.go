// Package artifact persists the reconciled packet set.
package artifact

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/danmuck/seqfetch/internal/protocol"
	"github.com/rs/zerolog/log"
)

// DefaultPath is the well-known artifact name in the working directory.
const DefaultPath = "output.json"

var (
	ErrWriteFailure = errors.New("artifact: write failure")
	ErrPathRequired = errors.New("artifact: path required")
)

// FileWriter writes the packet set as indented JSON, replacing any prior
// file at Path only once the new content is fully on disk.
type FileWriter struct {
	Path   string
	Indent string
	Perm   os.FileMode
}

func NewFileWriter(path string) *FileWriter {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return &FileWriter{Path: path, Indent: "  ", Perm: 0o644}
}

func (w *FileWriter) Write(packets []protocol.Packet) error {
	if strings.TrimSpace(w.Path) == "" {
		return ErrPathRequired
	}
	data, err := Encode(packets, w.Indent)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	if err := w.replace(data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailure, w.Path, err)
	}
	log.Info().Str("path", w.Path).Int("packets", len(packets)).Msg("artifact written")
	return nil
}

func (w *FileWriter) replace(data []byte) error {
	dir := filepath.Dir(w.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.Path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	perm := w.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, w.Path)
}

// Encode orders a copy of packets by sequence, keeping arrival order for
// equal sequences, and renders it as JSON.
func Encode(packets []protocol.Packet, indent string) ([]byte, error) {
	sorted := slices.Clone(packets)
	if sorted == nil {
		sorted = []protocol.Packet{}
	}
	slices.SortStableFunc(sorted, func(a, b protocol.Packet) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	if indent == "" {
		return json.Marshal(sorted)
	}
	return json.MarshalIndent(sorted, "", indent)
}
