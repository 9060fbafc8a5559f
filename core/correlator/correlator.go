// Package correlator tracks outstanding request/response exchanges keyed by
// (sorterID, transactionID). Transaction IDs are scoped per sorter; field
// devices reuse them across reconnects, so a key is only a duplicate while
// its prior transaction is still open.
package correlator

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrDuplicateTransaction signals a request re-using a key that is still open.
	ErrDuplicateTransaction = errors.New("correlator: duplicate transaction")
	// ErrLateResponse signals a response with no matching open request.
	ErrLateResponse = errors.New("correlator: late or orphan response")
)

// Key identifies one request/response exchange.
type Key struct {
	SorterID      int
	TransactionID int
}

type txnState int

const (
	stateOpen txnState = iota
	stateTimedOut
)

type txn struct {
	state    txnState
	openedAt time.Time
}

// Correlator owns the open-transaction table. Expiry is both lazy (checked
// on every Open and Answer for the touched key) and swept periodically so no
// transaction stays open indefinitely.
type Correlator struct {
	mu      sync.Mutex
	open    map[Key]*txn
	timeout func(sorterID int) time.Duration
}

// New creates a Correlator. timeout returns the window for a given sorter,
// allowing per-sorter configuration.
func New(timeout func(sorterID int) time.Duration) *Correlator {
	return &Correlator{open: make(map[Key]*txn), timeout: timeout}
}

// NewFixed creates a Correlator with a single timeout window for all sorters.
func NewFixed(window time.Duration) *Correlator {
	return New(func(int) time.Duration { return window })
}

func (c *Correlator) expired(k Key, t *txn, now time.Time) bool {
	return now.Sub(t.openedAt) >= c.timeout(k.SorterID)
}

// Open registers a new transaction. A key that is still open within its
// window is rejected; a key whose window has lapsed is expired in place and
// reopened.
func (c *Correlator) Open(sorterID, transactionID int, now time.Time) error {
	k := Key{SorterID: sorterID, TransactionID: transactionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.open[k]; ok {
		if !c.expired(k, t, now) {
			return ErrDuplicateTransaction
		}
		delete(c.open, k)
	}
	c.open[k] = &txn{state: stateOpen, openedAt: now}
	return nil
}

// Answer closes the transaction as answered. A response for a missing or
// timed-out key is an orphan: the sorter may already have acted on its own
// timeout, so the response is rejected rather than silently applied.
func (c *Correlator) Answer(sorterID, transactionID int, now time.Time) error {
	k := Key{SorterID: sorterID, TransactionID: transactionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.open[k]
	if !ok {
		return ErrLateResponse
	}
	if t.state == stateTimedOut || c.expired(k, t, now) {
		delete(c.open, k)
		return ErrLateResponse
	}
	delete(c.open, k)
	return nil
}

// Sweep expires every transaction whose window has lapsed and returns the
// affected keys so the caller can audit them.
func (c *Correlator) Sweep(now time.Time) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expired []Key
	for k, t := range c.open {
		if c.expired(k, t, now) {
			delete(c.open, k)
			expired = append(expired, k)
		}
	}
	return expired
}

// OpenCount returns the number of transactions currently open.
func (c *Correlator) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}
