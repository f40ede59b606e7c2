package tradefeed

import (
	"fmt"
	"strings"
	"sync"
)

// SymbolSet tracks which symbols the live trade stream should be
// subscribed to. Changing it takes effect the next time Stream reconnects
// and rebuilds its stream URL.
type SymbolSet struct {
	mu      sync.RWMutex
	symbols map[string]bool
}

// NewSymbolSet creates a SymbolSet seeded with the given symbols.
func NewSymbolSet(symbols ...string) *SymbolSet {
	s := &SymbolSet{symbols: make(map[string]bool)}
	for _, sym := range symbols {
		s.symbols[strings.ToUpper(sym)] = true
	}
	return s
}

// Add registers a symbol for subscription.
func (s *SymbolSet) Add(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[strings.ToUpper(symbol)] = true
}

// Remove drops a symbol from subscription.
func (s *SymbolSet) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.symbols, strings.ToUpper(symbol))
}

// List returns the currently subscribed symbols in no particular order.
func (s *SymbolSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// streamNames builds the Binance-style stream names for the current symbol
// set, e.g. "btcusdt@trade"; dial joins them with "/" into the
// combined-stream path.
func (s *SymbolSet) streamNames() []string {
	symbols := s.List()
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		streams = append(streams, fmt.Sprintf("%s@trade", strings.ToLower(sym)))
	}
	return streams
}
