package crop

import (
	"errors"
	"fmt"
	"sync"

	"seismicrop/pkg/logging"
	"seismicrop/pkg/segy"
)

// Opener opens the trace reader of a volume.
type Opener func(VolumeID) (segy.Reader, error)

// OpenSEGY opens a volume id as a SEG-Y file path.
func OpenSEGY(v VolumeID) (segy.Reader, error) {
	f, err := segy.Open(string(v))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("volume pool closed")

// VolumePool holds at most one open reader per volume for the lifetime of one
// extraction batch. Readers are shared by every task of the batch and closed
// together by Close.
type VolumePool struct {
	open Opener

	mu      sync.Mutex
	entries map[VolumeID]*poolEntry
	opened  int
	closed  bool
}

type poolEntry struct {
	once sync.Once
	r    segy.Reader
	err  error
}

// NewVolumePool returns an empty pool that opens volumes with open.
func NewVolumePool(open Opener) *VolumePool {
	if open == nil {
		open = OpenSEGY
	}
	return &VolumePool{open: open, entries: make(map[VolumeID]*poolEntry)}
}

// Acquire returns the shared reader of v, opening it on first use. Concurrent
// callers for the same volume wait for a single open; other volumes are not blocked.
func (p *VolumePool) Acquire(v VolumeID) (segy.Reader, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	e, ok := p.entries[v]
	if !ok {
		e = &poolEntry{}
		p.entries[v] = e
	}
	p.mu.Unlock()

	e.once.Do(func() {
		e.r, e.err = p.open(v)
		if e.err != nil {
			e.r = nil
			e.err = fmt.Errorf("opening volume %s: %w", v, e.err)
			return
		}
		p.mu.Lock()
		p.opened++
		p.mu.Unlock()
		logging.Debugf("Opened volume %s\n", v)
	})
	return e.r, e.err
}

// Opened returns the number of readers opened so far.
func (p *VolumePool) Opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

// Close closes every open reader exactly once. Later calls are no-ops.
func (p *VolumePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for v, e := range p.entries {
		if e.r == nil {
			continue
		}
		if err := e.r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing volume %s: %w", v, err))
		}
	}
	p.entries = nil
	return errors.Join(errs...)
}
