package schema

import (
	"errors"
	"sync"
)

const (
	minSymbolLen = 1
	maxSymbolLen = 16
)

var ErrInvalidSymbol = errors.New("symbol outside length bounds or contains invalid characters")

// Interner maps textual ticker symbols to dense SymbolIDs and back.
// IDs are assigned sequentially from 1 on first sight and are stable for
// the lifetime of the interner; the mapping is a bijection.
//
// All methods are safe for concurrent use; lookups of known symbols take
// only a read lock.
type Interner struct {
	mu       sync.RWMutex
	idByName map[string]SymbolID
	names    []string
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	return &Interner{idByName: make(map[string]SymbolID)}
}

// ID returns the id for a symbol, assigning the next sequential id on
// first sight. Repeated calls with the same symbol return the same id.
func (in *Interner) ID(symbol string) (SymbolID, error) {
	if !validSymbol(symbol) {
		return 0, ErrInvalidSymbol
	}

	in.mu.RLock()
	id, ok := in.idByName[symbol]
	in.mu.RUnlock()
	if ok {
		return id, nil
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.idByName[symbol]; ok {
		return id, nil
	}
	id = SymbolID(len(in.names) + 1)
	in.idByName[symbol] = id
	in.names = append(in.names, symbol)
	return id, nil
}

// Symbol returns the textual symbol for an id, or the empty string when
// the id is unknown.
func (in *Interner) Symbol(id SymbolID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == 0 || int(id) > len(in.names) {
		return ""
	}
	return in.names[id-1]
}

// Lookup returns the id for a symbol without assigning a new one.
func (in *Interner) Lookup(symbol string) (SymbolID, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.idByName[symbol]
	return id, ok
}

// Count returns the number of interned symbols.
func (in *Interner) Count() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.names)
}

// validSymbol accepts 1..16 characters from [A-Za-z0-9.-].
func validSymbol(symbol string) bool {
	if len(symbol) < minSymbolLen || len(symbol) > maxSymbolLen {
		return false
	}
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '-':
		default:
			return false
		}
	}
	return true
}
