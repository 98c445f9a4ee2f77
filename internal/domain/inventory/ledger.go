// Package inventory tracks per-product stock and the reservations each
// checkout session holds against it.
//
// A unit of stock is in exactly one of three states: available, reserved by
// some session, or sold. Reservations are attributed to a session id so that
// one session can be committed or released without touching another's holds.
package inventory

import (
	"sort"
	"sync"
)

// Level is a point-in-time view of one product's stock counters.
type Level struct {
	Total     int
	Reserved  int
	Sold      int
	Available int
}

type stock struct {
	total    int
	reserved int
	sold     int
}

func (s *stock) available() int {
	return s.total - s.reserved - s.sold
}

// Ledger holds stock counters and reservation ownership for all products.
// All methods are safe for concurrent use; every check-then-act sequence runs
// under a single mutex.
type Ledger struct {
	mu       sync.Mutex
	products map[string]*stock
	// holds maps session id -> product code -> reserved quantity.
	holds map[string]map[string]int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		products: make(map[string]*stock),
		holds:    make(map[string]map[string]int),
	}
}

// AddProduct registers code with the given number of units. Registering an
// existing code resets its counters; reservations still held against it are
// dropped.
func (l *Ledger) AddProduct(code string, units int) {
	if units < 0 {
		units = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.products[code] = &stock{total: units}
	for id, held := range l.holds {
		delete(held, code)
		if len(held) == 0 {
			delete(l.holds, id)
		}
	}
}

// StockLevel returns the counters for code. Unknown codes yield a zero Level.
func (l *Ledger) StockLevel(code string) Level {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.levelLocked(code)
}

func (l *Ledger) levelLocked(code string) Level {
	s, ok := l.products[code]
	if !ok {
		return Level{}
	}
	return Level{
		Total:     s.total,
		Reserved:  s.reserved,
		Sold:      s.sold,
		Available: s.available(),
	}
}

// IsAvailable reports whether quantity units of code could be reserved right
// now. Non-positive quantities are always available, even for unknown codes.
func (l *Ledger) IsAvailable(code string, quantity int) bool {
	if quantity <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.availableLocked(code, quantity)
}

func (l *Ledger) availableLocked(code string, quantity int) bool {
	s, ok := l.products[code]
	if !ok {
		return false
	}
	return s.available() >= quantity
}

// Reserve holds quantity units of code for sessionID. It returns false and
// changes nothing when the product is unknown or not enough units are
// available. Non-positive quantities succeed without effect.
func (l *Ledger) Reserve(code string, quantity int, sessionID string) bool {
	_, ok := l.TryReserve(code, quantity, sessionID)
	return ok
}

// TryReserve is Reserve that also returns the counters of code as they stood
// right after the attempt, read under the same lock. A failed attempt reports
// the availability that caused it.
func (l *Ledger) TryReserve(code string, quantity int, sessionID string) (Level, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if quantity <= 0 {
		return l.levelLocked(code), true
	}
	if !l.availableLocked(code, quantity) {
		return l.levelLocked(code), false
	}

	l.products[code].reserved += quantity

	held, ok := l.holds[sessionID]
	if !ok {
		held = make(map[string]int)
		l.holds[sessionID] = held
	}
	held[code] += quantity

	return l.levelLocked(code), true
}

// Release returns up to quantity units of code held by sessionID to the
// available pool. Requests above the held amount are clamped. Releasing an
// unknown code, a code the session does not hold, or a non-positive quantity
// is a successful no-op.
func (l *Ledger) Release(code string, quantity int, sessionID string) bool {
	if quantity <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.releaseLocked(code, quantity, sessionID)
	return true
}

func (l *Ledger) releaseLocked(code string, quantity int, sessionID string) {
	s, ok := l.products[code]
	if !ok {
		return
	}
	held, ok := l.holds[sessionID]
	if !ok {
		return
	}
	n := min(quantity, held[code])
	if n <= 0 {
		return
	}

	s.reserved -= n
	held[code] -= n
	if held[code] == 0 {
		delete(held, code)
	}
	if len(held) == 0 {
		delete(l.holds, sessionID)
	}
}

// Commit converts every reservation held by sessionID into sold units and
// forgets the session. A session without reservations commits trivially.
func (l *Ledger) Commit(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for code, n := range l.holds[sessionID] {
		s, ok := l.products[code]
		if !ok {
			continue
		}
		s.reserved -= n
		s.sold += n
	}
	delete(l.holds, sessionID)

	return true
}

// Cancel releases every reservation held by sessionID.
func (l *Ledger) Cancel(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	held := l.holds[sessionID]
	codes := make([]string, 0, len(held))
	for code := range held {
		codes = append(codes, code)
	}
	for _, code := range codes {
		l.releaseLocked(code, held[code], sessionID)
	}

	return true
}

// Reservations returns a copy of the quantities sessionID currently holds.
func (l *Ledger) Reservations(sessionID string) map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int, len(l.holds[sessionID]))
	for code, n := range l.holds[sessionID] {
		out[code] = n
	}
	return out
}

// Products returns the registered product codes in sorted order.
func (l *Ledger) Products() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	codes := make([]string, 0, len(l.products))
	for code := range l.products {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Verify checks the ledger invariants: no counter is negative, reserved plus
// sold never exceeds total, and each product's reserved counter equals the sum
// of the quantities sessions hold against it.
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	held := make(map[string]int, len(l.products))
	for _, codes := range l.holds {
		for code, n := range codes {
			if n <= 0 {
				return &InvariantError{Code: code, Reason: "non-positive session hold"}
			}
			held[code] += n
		}
	}

	for code, s := range l.products {
		switch {
		case s.reserved < 0 || s.sold < 0 || s.total < 0:
			return &InvariantError{Code: code, Reason: "negative counter"}
		case s.reserved+s.sold > s.total:
			return &InvariantError{Code: code, Reason: "reserved plus sold exceeds total"}
		case s.reserved != held[code]:
			return &InvariantError{Code: code, Reason: "reserved does not match session holds"}
		}
		delete(held, code)
	}
	for code := range held {
		return &InvariantError{Code: code, Reason: "hold on unregistered product"}
	}

	return nil
}
