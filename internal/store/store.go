// Package store persists the local edit log as append-only JSONL.
package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"editmesh/internal/proto"
)

const maxScanSize = 2 * proto.MaxFrameSize

type Log struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Log {
	_ = os.MkdirAll(filepath.Dir(path), 0700)
	return &Log{path: path}
}

func (l *Log) Path() string {
	return l.path
}

// EnsureLog creates the log file if it does not exist yet.
func (l *Log) EnsureLog() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	return f.Close()
}

func (l *Log) Append(e proto.Edit) error {
	data, err := proto.EncodeEdit(e)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return syncFile(f)
}

// Import appends a batch of edits, stopping at the first failure.
func (l *Log) Import(edits []proto.Edit) error {
	for i, e := range edits {
		if err := l.Append(e); err != nil {
			return fmt.Errorf("import edit %d: %w", i, err)
		}
	}
	return nil
}

// List returns every decodable record in append order. Undecodable lines
// are skipped, matching the log's best-effort read path.
func (l *Log) List() ([]proto.Edit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []proto.Edit
	sc := newScanner(f)
	for sc.Scan() {
		if e, err := proto.DecodeEdit(sc.Bytes()); err == nil {
			out = append(out, e)
		}
	}
	return out, sc.Err()
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxScanSize)
	return sc
}

func syncFile(f *os.File) error {
	if f == nil {
		return nil
	}
	return f.Sync()
}
