// Package densestore keeps materialized seismic volumes in a badger database
// as compressed inline slabs, with a cache of decoded slabs in front of it.
package densestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/dgraph-io/badger/v3"
	"github.com/dustin/go-humanize"

	"seismicrop/internal/models"
	"seismicrop/pkg/logging"
)

// Options configure a Store.
type Options struct {
	// Path is the database directory. It is created if missing.
	Path string

	// InMemory keeps the database in memory; Path is ignored.
	InMemory bool

	// Compression applies to slabs written through this store. Slabs record
	// their own codec, so stores with different settings can share a database.
	Compression Compression

	// CacheBytes sizes the decoded slab cache. Zero disables it.
	CacheBytes int

	// ReadOnly opens an existing database without write access.
	ReadOnly bool
}

// ErrVolumeNotFound is returned for volumes without stored metadata.
var ErrVolumeNotFound = errors.New("dense volume not found")

// Store holds dense volumes keyed by name.
type Store struct {
	db       *badger.DB
	opts     Options
	cache    *freecache.Cache
	attempts uint64
	hits     uint64
}

// Open opens or creates the store described by opts.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("dense store needs a path or in-memory mode")
		}
		if _, err := os.Stat(opts.Path); os.IsNotExist(err) {
			logging.Infof("Dense store not already at path (%s). Creating directory...\n", opts.Path)
			if err := os.MkdirAll(opts.Path, 0744); err != nil {
				return nil, fmt.Errorf("can't make directory at %s: %w", opts.Path, err)
			}
		}
		bopts = badger.DefaultOptions(opts.Path).WithReadOnly(opts.ReadOnly)
	}
	bopts = bopts.WithLogger(badgerLogger{}).WithNumVersionsToKeep(1).WithSyncWrites(false)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening dense store: %w", err)
	}
	s := &Store{db: db, opts: opts}
	if opts.CacheBytes > 0 {
		s.cache = freecache.NewCache(opts.CacheBytes)
		logging.Infof("Created slab cache of ~ %s\n", humanize.IBytes(uint64(opts.CacheBytes)))
	}
	return s, nil
}

func (s *Store) String() string {
	if s.opts.InMemory {
		return "dense store (in memory)"
	}
	return fmt.Sprintf("dense store @ %s", s.opts.Path)
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if s.cache != nil {
		logging.Debugf("Slab cache served %d of %d reads\n", atomic.LoadUint64(&s.hits), atomic.LoadUint64(&s.attempts))
	}
	return err
}

// Key layout: metadata under 'm' + name + 0, slabs under 's' + name + 0 + inline
// (uint32 big endian). The terminating zero keeps one name from prefixing another.
const (
	metaPrefix = 'm'
	slabPrefix = 's'
)

func metaKey(name string) []byte {
	k := make([]byte, 0, len(name)+2)
	k = append(k, metaPrefix)
	k = append(k, name...)
	return append(k, 0)
}

func slabKey(name string, inline int) []byte {
	k := make([]byte, 0, len(name)+6)
	k = append(k, slabPrefix)
	k = append(k, name...)
	k = append(k, 0)
	return binary.BigEndian.AppendUint32(k, uint32(inline))
}

func encodeShape(shape models.Shape) []byte {
	b := make([]byte, 12)
	for a := 0; a < 3; a++ {
		binary.BigEndian.PutUint32(b[4*a:], uint32(shape[a]))
	}
	return b
}

func decodeShape(b []byte) (models.Shape, error) {
	var shape models.Shape
	if len(b) != 12 {
		return shape, fmt.Errorf("bad volume metadata of %d bytes", len(b))
	}
	for a := 0; a < 3; a++ {
		shape[a] = int(binary.BigEndian.Uint32(b[4*a:]))
	}
	return shape, nil
}

// get returns a copy of the value at key, or nil if absent.
func (s *Store) get(key []byte) ([]byte, error) {
	var v []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	return v, err
}

// Volume returns the stored volume with the given name.
func (s *Store) Volume(name string) (*Volume, error) {
	b, err := s.get(metaKey(name))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrVolumeNotFound, name)
	}
	shape, err := decodeShape(b)
	if err != nil {
		return nil, fmt.Errorf("volume %q: %w", name, err)
	}
	return &Volume{store: s, name: name, shape: shape}, nil
}

// Volumes returns the names of all stored volumes in sorted order.
func (s *Store) Volumes() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{metaPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			names = append(names, string(k[1:len(k)-1]))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// Delete removes a volume and all of its slabs.
func (s *Store) Delete(name string) error {
	prefix := slabKey(name, 0)
	prefix = prefix[:len(prefix)-4]
	if err := s.db.DropPrefix(prefix, metaKey(name)); err != nil {
		return fmt.Errorf("deleting volume %q: %w", name, err)
	}
	if s.cache != nil {
		s.cache.Clear()
	}
	return nil
}

// Writer stores the slabs of one volume with batched writes. Put may be called
// from several goroutines.
type Writer struct {
	store   *Store
	name    string
	shape   models.Shape
	batch   *badger.WriteBatch
	written uint64
	stored  uint64
}

// NewWriter starts writing a volume of the given shape, replacing any volume
// of the same name once committed.
func (s *Store) NewWriter(name string, shape models.Shape) (*Writer, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("invalid volume shape %s", shape)
	}
	if s.opts.ReadOnly {
		return nil, fmt.Errorf("%s is read-only", s)
	}
	return &Writer{store: s, name: name, shape: shape, batch: s.db.NewWriteBatch()}, nil
}

// Put stores the crossline-by-height slab of one inline position.
func (w *Writer) Put(inline int, slab []float32) error {
	if inline < 0 || inline >= w.shape[0] {
		return fmt.Errorf("inline %d outside volume %q of shape %s", inline, w.name, w.shape)
	}
	if len(slab) != w.shape[1]*w.shape[2] {
		return fmt.Errorf("slab of %d samples for volume %q of shape %s", len(slab), w.name, w.shape)
	}
	v, err := encodeSlab(slab, w.store.opts.Compression)
	if err != nil {
		return err
	}
	if err := w.batch.Set(slabKey(w.name, inline), v); err != nil {
		return fmt.Errorf("writing inline %d of %q: %w", inline, w.name, err)
	}
	atomic.AddUint64(&w.written, uint64(4*len(slab)))
	atomic.AddUint64(&w.stored, uint64(len(v)))
	return nil
}

// Commit writes the metadata and flushes every pending slab.
func (w *Writer) Commit() error {
	if err := w.batch.Set(metaKey(w.name), encodeShape(w.shape)); err != nil {
		w.batch.Cancel()
		return err
	}
	if err := w.batch.Flush(); err != nil {
		return fmt.Errorf("committing volume %q: %w", w.name, err)
	}
	if w.store.cache != nil {
		w.store.cache.Clear()
	}
	logging.Infof("Stored volume %q of shape %s: %s as %s with %s\n", w.name, w.shape,
		humanize.Bytes(w.written), humanize.Bytes(w.stored), w.store.opts.Compression)
	return nil
}

// Cancel discards pending writes.
func (w *Writer) Cancel() {
	w.batch.Cancel()
}

// PutVolume stores a whole array as a volume.
func (s *Store) PutVolume(name string, a *models.Array3D) error {
	w, err := s.NewWriter(name, a.Shape)
	if err != nil {
		return err
	}
	n := a.Shape[1] * a.Shape[2]
	for i := 0; i < a.Shape[0]; i++ {
		if err := w.Put(i, a.Data[i*n:(i+1)*n]); err != nil {
			w.Cancel()
			return err
		}
	}
	return w.Commit()
}

// Volume is a read view of one stored volume. It is safe for concurrent use.
type Volume struct {
	store *Store
	name  string
	shape models.Shape
}

// Name returns the volume name.
func (v *Volume) Name() string { return v.name }

// Shape returns the logical shape of the volume.
func (v *Volume) Shape() models.Shape { return v.shape }

// InlineSlab returns the crossline-by-height plane at inline position i.
func (v *Volume) InlineSlab(i int) ([]float32, error) {
	if i < 0 || i >= v.shape[0] {
		return nil, fmt.Errorf("inline %d outside volume %q of shape %s", i, v.name, v.shape)
	}
	key := slabKey(v.name, i)
	s := v.store

	if s.cache != nil {
		atomic.AddUint64(&s.attempts, 1)
		raw, err := s.cache.Get(key)
		if err != nil && err != freecache.ErrNotFound {
			return nil, err
		}
		if raw != nil {
			atomic.AddUint64(&s.hits, 1)
			return bytesFloats(raw)
		}
	}

	stored, err := s.get(key)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if stored == nil {
		// never written: all zeros
		raw = make([]byte, 4*v.shape[1]*v.shape[2])
	} else if raw, err = decodeSlab(stored); err != nil {
		return nil, fmt.Errorf("inline %d of %q: %w", i, v.name, err)
	}
	if len(raw) != 4*v.shape[1]*v.shape[2] {
		return nil, fmt.Errorf("inline %d of %q holds %d bytes, expected %d", i, v.name, len(raw), 4*v.shape[1]*v.shape[2])
	}
	if s.cache != nil {
		if err := s.cache.Set(key, raw, 0); err != nil {
			logging.Debugf("Not caching inline %d of %q (%s): %v\n", i, v.name, humanize.Bytes(uint64(len(raw))), err)
		}
	}
	return bytesFloats(raw)
}

// ReadAll returns the whole volume as one array.
func (v *Volume) ReadAll() (*models.Array3D, error) {
	out := models.NewArray3D(v.shape)
	n := v.shape[1] * v.shape[2]
	for i := 0; i < v.shape[0]; i++ {
		slab, err := v.InlineSlab(i)
		if err != nil {
			return nil, err
		}
		copy(out.Data[i*n:], slab)
	}
	return out, nil
}

// badgerLogger routes badger messages to the package logger, one level quieter.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Warningf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warningf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debugf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {}
