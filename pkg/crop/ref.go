package crop

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/twinj/uuid"
)

// Salted keys have the form base + SaltSeparator + SaltLength characters.
const (
	SaltSeparator = "___"
	SaltLength    = 7
	saltAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ErrSeparatorInKey is returned when a base key cannot be salted reversibly.
var ErrSeparatorInKey = errors.New("base key contains the salt separator")

// Salt appends a random suffix so that several crops of one volume get unique
// keys in collections that require them. Unsalt recovers the base key.
func Salt(base string) (string, error) {
	if strings.Contains(base, SaltSeparator) {
		return "", fmt.Errorf("%w: %q", ErrSeparatorInKey, base)
	}
	return base + SaltSeparator + string(saltSuffix(uuidBytes())), nil
}

// uuidBytes returns the random bytes of successive version 4 UUIDs. The
// version and variant bits sit before byte 9, so only the tail is used.
func uuidBytes() func() byte {
	var buf []byte
	return func() byte {
		if len(buf) == 0 {
			buf = uuid.NewV4().Bytes()[9:]
		}
		b := buf[0]
		buf = buf[1:]
		return b
	}
}

// saltSuffix draws SaltLength characters from next. Bytes past the last whole
// multiple of the alphabet size are skipped so every character is equally likely.
func saltSuffix(next func() byte) []byte {
	limit := 256 - 256%len(saltAlphabet)
	suffix := make([]byte, 0, SaltLength)
	for len(suffix) < SaltLength {
		b := int(next())
		if b >= limit {
			continue
		}
		suffix = append(suffix, saltAlphabet[b%len(saltAlphabet)])
	}
	return suffix
}

// Unsalt strips a suffix added by Salt. Keys that were not salted are
// returned unchanged.
func Unsalt(key string) string {
	n := len(SaltSeparator) + SaltLength
	if len(key) < n {
		return key
	}
	cut := len(key) - n
	if key[cut:cut+len(SaltSeparator)] != SaltSeparator {
		return key
	}
	for _, c := range key[cut+len(SaltSeparator):] {
		if !strings.ContainsRune(saltAlphabet, c) {
			return key
		}
	}
	return key[:cut]
}

// Ref is the two-level address of one crop: a unique crop id and the base
// volume it reads from.
type Ref struct {
	ID     string
	Volume VolumeID
}

// NewRef returns a reference with a fresh id.
func NewRef(volume VolumeID) Ref {
	return Ref{ID: uuid.NewV4().String(), Volume: volume}
}

// RefSet maps crop ids to their base volumes. It is safe for concurrent use.
type RefSet struct {
	mu   sync.RWMutex
	byID map[string]VolumeID
}

// NewRefSet returns an empty set.
func NewRefSet() *RefSet {
	return &RefSet{byID: make(map[string]VolumeID)}
}

// Add creates and records a new reference to volume.
func (s *RefSet) Add(volume VolumeID) Ref {
	r := NewRef(volume)
	s.Register(r)
	return r
}

// Register records an existing reference.
func (s *RefSet) Register(r Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ID] = r.Volume
}

// Volume returns the base volume of a crop id.
func (s *RefSet) Volume(id string) (VolumeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	return v, ok
}

// Len returns the number of recorded references.
func (s *RefSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Volumes returns the distinct base volumes of the given windows in first-seen order.
func Volumes(windows []Window) []VolumeID {
	seen := make(map[VolumeID]bool)
	var out []VolumeID
	for _, w := range windows {
		if !seen[w.Ref.Volume] {
			seen[w.Ref.Volume] = true
			out = append(out, w.Ref.Volume)
		}
	}
	return out
}

// Keyed assigns every window a salted key derived from its volume, the form
// expected by drivers that address crops by unique string keys.
func Keyed(windows []Window) (map[string]Window, error) {
	out := make(map[string]Window, len(windows))
	for _, w := range windows {
		for {
			key, err := Salt(string(w.Ref.Volume))
			if err != nil {
				return nil, err
			}
			if _, dup := out[key]; !dup {
				out[key] = w
				break
			}
		}
	}
	return out, nil
}
