// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package surface

import (
	"fmt"
	"sync"

	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/google/renameio/v2"
)

// File is a surface that assembles a lesson into a local file for offline
// viewing. The file only appears at path once the stream ended; an abandoned
// session leaves no partial file behind.
type File struct {
	*Memory

	path    string
	mu      sync.Mutex
	pending *renameio.PendingFile
}

// NewFile creates a file surface writing to path.
func NewFile(path string, opts ...MemoryOption) *File {
	return &File{Memory: NewMemory(opts...), path: path}
}

// Path returns the destination path.
func (f *File) Path() string { return f.path }

func (f *File) Attach(notify func(Event)) error {
	if err := f.Memory.Attach(notify); err != nil {
		return err
	}
	pending, err := renameio.NewPendingFile(f.path)
	if err != nil {
		f.Memory.Detach()
		return fmt.Errorf("create pending lesson file: %w", err)
	}
	f.mu.Lock()
	f.pending = pending
	f.mu.Unlock()
	return nil
}

func (f *File) Detach() {
	f.Memory.Detach()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil {
		if err := f.pending.Cleanup(); err != nil {
			logger := xglog.WithComponent("surface")
			logger.Debug().Err(err).Str("path", f.path).Msg("cleanup pending lesson file")
		}
		f.pending = nil
	}
}

func (f *File) AppendSegment(seg Segment) error {
	if err := f.Memory.AppendSegment(seg); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return ErrDetached
	}
	if _, err := f.pending.Write(seg.Data); err != nil {
		return fmt.Errorf("write segment %d: %w", seg.Sequence, err)
	}
	return nil
}

// EndOfStream fsyncs and atomically moves the assembled file into place.
func (f *File) EndOfStream() error {
	f.mu.Lock()
	if f.pending == nil {
		f.mu.Unlock()
		return ErrDetached
	}
	err := f.pending.CloseAtomicallyReplace()
	f.pending = nil
	f.mu.Unlock()
	if err != nil {
		return fmt.Errorf("commit lesson file: %w", err)
	}
	return f.Memory.EndOfStream()
}
