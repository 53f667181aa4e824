package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for queue tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newMemStore() *memStore { return &memStore{records: map[string]*Record{}} }

func (m *memStore) Create(_ context.Context, id string, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = &Record{ID: id, Status: StatusPending, Topic: req.Topic, Request: req, CreatedAt: time.Now()}
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("whitepaper %s: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id, status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	r.Status, r.Error = status, errMsg
	return nil
}

func (m *memStore) SaveResult(_ context.Context, paper *Whitepaper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[paper.ID]
	if !ok {
		r = &Record{ID: paper.ID}
		m.records[paper.ID] = r
	}
	r.Status, r.Error, r.Title, r.Paper = StatusCompleted, "", paper.Title, paper
	return nil
}

func (m *memStore) List(context.Context, int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		return r.Status
	}
	return ""
}

func paperFor(req Request) *Whitepaper {
	blocks := parseMarkup("# " + req.Topic + "\n\nBody text.")
	return &Whitepaper{ID: "ignored", Title: req.Topic, Topic: req.Topic, Blocks: blocks}
}

func waitStatus(t *testing.T, store *memStore, id, want string) {
	t.Helper()
	require.Eventually(t, func() bool { return store.status(id) == want }, 2*time.Second, 5*time.Millisecond,
		"job %s never reached %s (now %s)", id, want, store.status(id))
}

func TestJobQueueCompletesJobs(t *testing.T) {
	store := newMemStore()
	q := newJobQueue(store, func(_ context.Context, req Request) (*Whitepaper, error) {
		return paperFor(req), nil
	}, 2, 10, nil)
	q.Start()
	defer q.Stop(context.Background())

	id, err := q.Submit(context.Background(), Request{Topic: "service mesh"})
	require.NoError(t, err)
	waitStatus(t, store, id, StatusCompleted)

	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, rec.Paper)
	assert.Equal(t, id, rec.Paper.ID)
	assert.Equal(t, "service mesh", rec.Title)
}

func TestJobQueueMarksFailures(t *testing.T) {
	store := newMemStore()
	q := newJobQueue(store, func(context.Context, Request) (*Whitepaper, error) {
		return nil, errors.New("model refused")
	}, 1, 10, nil)
	q.Start()
	defer q.Stop(context.Background())

	id, err := q.Submit(context.Background(), Request{Topic: "x"})
	require.NoError(t, err)
	waitStatus(t, store, id, StatusFailed)

	rec, _ := store.Get(context.Background(), id)
	assert.Equal(t, "model refused", rec.Error)
}

func TestJobQueueRejectsInvalidRequest(t *testing.T) {
	store := newMemStore()
	q := newJobQueue(store, nil, 1, 1, nil)
	_, err := q.Submit(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, store.records)
}

func TestJobQueueValidatesBeforeStoring(t *testing.T) {
	store := newMemStore()
	q := newJobQueue(store, nil, 1, 1, nil)
	q.validate = NewGenerator(&fakeProvider{}, nil, nil, "", nil).Validate

	_, err := q.Submit(context.Background(), Request{Topic: "a", UseKnowledgeBase: true, Namespace: "ns"})
	assert.ErrorIs(t, err, ErrKnowledgeDisabled)
	assert.Empty(t, store.records)
}

func TestJobQueueFull(t *testing.T) {
	store := newMemStore()
	// Not started, so nothing drains the single slot.
	q := newJobQueue(store, nil, 1, 1, nil)

	first, err := q.Submit(context.Background(), Request{Topic: "a"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, store.status(first))

	_, err = q.Submit(context.Background(), Request{Topic: "b"})
	assert.ErrorIs(t, err, ErrQueueFull)

	failed := 0
	for _, r := range store.records {
		if r.Status == StatusFailed {
			failed++
			assert.Equal(t, ErrQueueFull.Error(), r.Error)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestJobQueueStop(t *testing.T) {
	store := newMemStore()
	release := make(chan struct{})
	q := newJobQueue(store, func(ctx context.Context, req Request) (*Whitepaper, error) {
		select {
		case <-release:
			return paperFor(req), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, 1, 5, nil)
	q.Start()

	id, err := q.Submit(context.Background(), Request{Topic: "drain me"})
	require.NoError(t, err)
	waitStatus(t, store, id, StatusProcessing)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = q.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	waitStatus(t, store, id, StatusFailed)
	close(release)

	_, err = q.Submit(context.Background(), Request{Topic: "late"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.NoError(t, q.Stop(context.Background()))
}
