package exposed

import "sync"

type noValue struct{}

func (noValue) String() string { return "<unset>" }

// MarshalJSON renders the unset marker as null.
func (noValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Unset is what Get returns for a property that was never given a value.
// It compares unequal to every value a caller can store, nil included.
var Unset any = noValue{}

// IsUnset reports whether v is the Unset marker.
func IsUnset(v any) bool { _, ok := v.(noValue); return ok }

// Slot is the live value cell of a property. Custom handlers receive the
// slot of their property and may Load and Store it while they run.
type Slot struct {
    mu  sync.RWMutex
    v   any
    set bool
}

// Load returns the stored value or Unset.
func (s *Slot) Load() any {
    s.mu.RLock(); defer s.mu.RUnlock()
    if !s.set { return Unset }
    return s.v
}

// Store replaces the stored value. Storing Unset clears the slot.
func (s *Slot) Store(v any) {
    s.mu.Lock(); defer s.mu.Unlock()
    if IsUnset(v) {
        s.v, s.set = nil, false
        return
    }
    s.v, s.set = v, true
}

// IsSet reports whether a value was ever stored.
func (s *Slot) IsSet() bool {
    s.mu.RLock(); defer s.mu.RUnlock()
    return s.set
}

// wireValue maps Unset to nil before a value is handed to a codec.
func wireValue(v any) any {
    if IsUnset(v) { return nil }
    return v
}
