// Package pending implements the low-level Pending Request Table shared by
// the ThingsBoard transport engine: a collection keyed by a monotonically
// increasing request id, holding the callback pair, the conversation family
// tag, the caller context and a submission timestamp.
package pending

import (
	"errors"
	"sync"
	"time"
)

// Family is the closed set of conversation families that correlate a
// request to its response. Server-side RPC and shared-attribute pushes are
// not requests in this sense; they never appear here.
type Family int

const (
	AttributeFetch Family = iota
	ClientRPC
	FirmwareChunk
	Provision
)

func (f Family) String() string {
	switch f {
	case AttributeFetch:
		return "attribute-fetch"
	case ClientRPC:
		return "client-rpc"
	case FirmwareChunk:
		return "firmware-chunk"
	case Provision:
		return "provision"
	default:
		return "unknown"
	}
}

// ErrDuplicateID is returned by Insert when id_hint names an id already live
// in the table. Per spec.md this should never occur in practice.
var ErrDuplicateID = errors.New("pending: duplicate request id")

// Response is delivered to a pending entry's OnResponse callback. Chunk is
// only meaningful for the FirmwareChunk family (-1 otherwise); this is the
// tagged-union stand-in for the source's per-family callback arity.
type Response struct {
	ID      int64
	Family  Family
	Payload []byte
	Chunk   int
}

// ResponseFunc is invoked with the table mutex released.
type ResponseFunc func(Response)

// TimeoutFunc is invoked with the table mutex released.
type TimeoutFunc func(id int64)

// Entry is a single outstanding request. It lives in exactly one of three
// places: the live Table, a local slice handed back by DrainExpired/DrainAll
// during a sweep, or nowhere (destroyed).
type Entry struct {
	Family     Family
	ID         int64
	Context    any
	OnResponse ResponseFunc
	OnTimeout  TimeoutFunc
	Submitted  time.Time
}

// Table is the Pending Request Table. Every operation is atomic under a
// single mutex; callbacks are never invoked while it is held.
type Table struct {
	mu      sync.Mutex
	counter int64
	byID    map[int64]*Entry
	order   []int64 // insertion order, for stable drain operations
}

// New returns an empty Table.
func New() *Table {
	return &Table{
		byID: make(map[int64]*Entry),
	}
}

// nextID returns the next positive request id, skipping zero and negative
// values on int64 wraparound.
func (t *Table) nextID() int64 {
	t.counter++
	if t.counter <= 0 {
		t.counter = 1
	}
	return t.counter
}

// Insert adds a new pending entry. If idHint <= 0 a new id is generated from
// the table's counter. If both callbacks are nil the id is still returned
// but nothing is inserted — this is the fire-and-forget path, and the
// caller's publish should proceed regardless. A duplicate *live* id is
// rejected with ErrDuplicateID; re-registering an id that has already been
// taken out of the table (the firmware-chunk case, where one id spans many
// chunks) is not a duplicate.
func (t *Table) Insert(family Family, idHint int64, context any, onResponse ResponseFunc, onTimeout TimeoutFunc) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := idHint
	if id <= 0 {
		id = t.nextID()
	} else if id > t.counter {
		t.counter = id
	}

	if onResponse == nil && onTimeout == nil {
		return id, nil
	}

	if _, exists := t.byID[id]; exists {
		return 0, ErrDuplicateID
	}

	t.byID[id] = &Entry{
		Family:     family,
		ID:         id,
		Context:    context,
		OnResponse: onResponse,
		OnTimeout:  onTimeout,
		Submitted:  time.Now(),
	}
	t.order = append(t.order, id)
	return id, nil
}

// removeLocked deletes id from both the map and the insertion-order slice.
// Must be called with t.mu held.
func (t *Table) removeLocked(id int64) {
	delete(t.byID, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// TakeByID removes and returns the entry with the given id, if any.
func (t *Table) TakeByID(id int64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	t.removeLocked(id)
	return e, true
}

// TakeByFamily removes and returns the first entry (by insertion order)
// belonging to family. Used only where the wire protocol carries no id
// (the provisioning response).
func (t *Table) TakeByFamily(family Family) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.order {
		if e := t.byID[id]; e.Family == family {
			t.removeLocked(id)
			return e, true
		}
	}
	return nil, false
}

// DrainExpired removes and returns, in original insertion order, every entry
// whose Submitted+timeout <= now.
func (t *Table) DrainExpired(now time.Time, timeout time.Duration) []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []*Entry
	var keep []int64
	for _, id := range t.order {
		e := t.byID[id]
		if !now.Before(e.Submitted.Add(timeout)) {
			expired = append(expired, e)
			delete(t.byID, id)
		} else {
			keep = append(keep, id)
		}
	}
	t.order = keep
	return expired
}

// DrainAll removes and returns every entry, in insertion order. Used on
// disconnect, where the spec treats a bulk drain as a bulk timeout.
func (t *Table) DrainAll() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	all := make([]*Entry, 0, len(t.order))
	for _, id := range t.order {
		all = append(all, t.byID[id])
	}
	t.byID = make(map[int64]*Entry)
	t.order = nil
	return all
}

// Len reports the number of live pending entries. Intended for tests and
// diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
