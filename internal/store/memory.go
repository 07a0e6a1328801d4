// README: In-memory Store implementation with change feeds and serialized
// transactions. Backs the test suite and local development; mirrors the
// Firestore adapter's observable behavior (initial snapshot delivered as
// Added events, sentinels translated at write time).
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

type Memory struct {
	mu   sync.Mutex
	cols map[string]map[string]map[string]any
	subs []*memSub
}

func NewMemory() *Memory {
	return &Memory{cols: make(map[string]map[string]map[string]any)}
}

type memSub struct {
	col     string
	q       Query
	matched map[string]bool

	qmu    sync.Mutex
	wake   *sync.Cond
	queue  []Change
	closed bool
}

func newMemSub(col string, q Query) *memSub {
	s := &memSub{col: col, q: q, matched: make(map[string]bool)}
	s.wake = sync.NewCond(&s.qmu)
	return s
}

func (s *memSub) enqueue(c Change) {
	s.qmu.Lock()
	s.queue = append(s.queue, c)
	s.wake.Broadcast()
	s.qmu.Unlock()
}

func (s *memSub) close() {
	s.qmu.Lock()
	s.closed = true
	s.wake.Broadcast()
	s.qmu.Unlock()
}

func (m *Memory) Get(ctx context.Context, col, id string) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.cols[col][id]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return Doc{ID: id, Data: copyFields(data)}, nil
}

func (m *Memory) Update(ctx context.Context, col, id string, fields map[string]any) error {
	m.mu.Lock()
	data, ok := m.cols[col][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	applyFields(data, fields)
	m.notifyLocked(col, id, data)
	m.mu.Unlock()
	return nil
}

// Put creates or replaces a whole document. Not part of the Store interface;
// used to seed fixtures and by the in-memory admin flows.
func (m *Memory) Put(ctx context.Context, col, id string, data map[string]any) error {
	m.mu.Lock()
	if m.cols[col] == nil {
		m.cols[col] = make(map[string]map[string]any)
	}
	body := copyFields(data)
	applyFields(body, nil)
	m.cols[col][id] = body
	m.notifyLocked(col, id, body)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Query(ctx context.Context, col string, q Query) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Doc
	for id, data := range m.cols[col] {
		if q.matches(data) {
			out = append(out, Doc{ID: id, Data: copyFields(data)})
		}
	}
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context, col string, q Query, fn func(Change)) error {
	sub := newMemSub(col, q)

	m.mu.Lock()
	for id, data := range m.cols[col] {
		if q.matches(data) {
			sub.matched[id] = true
			sub.enqueue(Change{Kind: Added, ID: id, Data: copyFields(data)})
		}
	}
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.close()
	}()

	for {
		sub.qmu.Lock()
		for len(sub.queue) == 0 && !sub.closed {
			sub.wake.Wait()
		}
		batch := sub.queue
		sub.queue = nil
		closed := sub.closed
		sub.qmu.Unlock()

		for _, c := range batch {
			fn(c)
		}
		if closed {
			m.removeSub(sub)
			return nil
		}
	}
}

func (m *Memory) removeSub(sub *memSub) {
	m.mu.Lock()
	for i, s := range m.subs {
		if s == sub {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
}

// notifyLocked fans a document change out to matching subscriptions. Caller
// holds m.mu.
func (m *Memory) notifyLocked(col, id string, data map[string]any) {
	for _, sub := range m.subs {
		if sub.col != col {
			continue
		}
		now := data != nil && sub.q.matches(data)
		was := sub.matched[id]
		switch {
		case now && !was:
			sub.matched[id] = true
			sub.enqueue(Change{Kind: Added, ID: id, Data: copyFields(data)})
		case now && was:
			sub.enqueue(Change{Kind: Modified, ID: id, Data: copyFields(data)})
		case !now && was:
			delete(sub.matched, id)
			sub.enqueue(Change{Kind: Removed, ID: id, Data: copyFields(data)})
		}
	}
}

// memTx stages writes under the store lock; holding m.mu for the whole
// function gives the transaction its exclusivity.
type memTx struct {
	m     *Memory
	stage []func()
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		m.mu.Unlock()
		return err
	}
	for _, apply := range tx.stage {
		apply()
	}
	m.mu.Unlock()
	return nil
}

func (t *memTx) Get(col, id string) (Doc, error) {
	data, ok := t.m.cols[col][id]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return Doc{ID: id, Data: copyFields(data)}, nil
}

func (t *memTx) Update(col, id string, fields map[string]any) error {
	if _, ok := t.m.cols[col][id]; !ok {
		return ErrNotFound
	}
	staged := copyFields(fields)
	t.stage = append(t.stage, func() {
		data := t.m.cols[col][id]
		if data == nil {
			return
		}
		applyFields(data, staged)
		t.m.notifyLocked(col, id, data)
	})
	return nil
}

func (t *memTx) Create(col string, data map[string]any) (string, error) {
	id := newDocID()
	body := copyFields(data)
	t.stage = append(t.stage, func() {
		if t.m.cols[col] == nil {
			t.m.cols[col] = make(map[string]map[string]any)
		}
		applyFields(body, nil)
		t.m.cols[col][id] = body
		t.m.notifyLocked(col, id, body)
	})
	return id, nil
}

// applyFields merges fields into data, translating the write sentinels. A
// nil fields map still resolves sentinels already present in data, which
// Put relies on for seeded documents.
func applyFields(data, fields map[string]any) {
	now := time.Now().UTC()
	for k, v := range fields {
		switch v {
		case Delete:
			delete(data, k)
		case ServerTimestamp:
			data[k] = now
		default:
			data[k] = v
		}
	}
	for k, v := range data {
		switch v {
		case Delete:
			delete(data, k)
		case ServerTimestamp:
			data[k] = now
		}
	}
}

func copyFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func newDocID() string {
	var b [10]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
