package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrPoolClosed is returned for operations submitted after Close.
var ErrPoolClosed = errors.New("store: pool is closed")

// Pool serialises access to the database behind a fixed set of workers.
// Each worker owns a private Store handle; the pool size is the maximum
// concurrency against the file. Operations picked up by the same worker
// run in dispatch order; across workers there is no ordering.
type Pool struct {
	jobs chan func(*Store)
	stop chan struct{}

	mu     sync.Mutex
	closed bool

	wg     sync.WaitGroup
	stores []*Store
}

// OpenPool opens workers store handles for the database at path and
// starts one worker goroutine per handle.
func OpenPool(path string, workers int) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("store: pool size %d, want at least 1", workers)
	}

	p := &Pool{
		jobs: make(chan func(*Store)),
		stop: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		s, err := Open(path)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.stores = append(p.stores, s)
		p.wg.Add(1)
		go p.worker(i, s)
	}

	log.Info().Int("workers", workers).Str("path", path).Msg("store: pool started")
	return p, nil
}

func (p *Pool) worker(id int, s *Store) {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			job(s)
		case <-p.stop:
			log.Debug().Int("worker", id).Msg("store: worker stopped")
			return
		}
	}
}

// Close stops the workers after their current jobs complete and
// releases every handle. The jobs channel is never closed, so a submit
// racing with Close fails with ErrPoolClosed instead of panicking.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	for _, s := range p.stores {
		s.Close()
	}
}

// submit hands the job to exactly one worker. It fails without queueing
// when the pool is closed or the context is already done.
func (p *Pool) submit(ctx context.Context, job func(*Store)) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.stop:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func run[T any](ctx context.Context, p *Pool, op func(*Store) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	err := p.submit(ctx, func(s *Store) {
		value, err := op(s)
		done <- result{value: value, err: err}
	})
	if err != nil {
		var zero T
		return zero, err
	}

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetVN returns the VN with the given id, or nil if absent.
func (p *Pool) GetVN(ctx context.Context, id uint64) (*VN, error) {
	return run(ctx, p, func(s *Store) (*VN, error) { return s.GetVN(id) })
}

// GetHooks returns all hooks for the VN.
func (p *Pool) GetHooks(ctx context.Context, vn VN) ([]Hook, error) {
	return run(ctx, p, func(s *Store) ([]Hook, error) { return s.GetHooks(vn) })
}

// GetVNData returns the VN together with its hooks, or nil if untracked.
func (p *Pool) GetVNData(ctx context.Context, id uint64) (*VNData, error) {
	return run(ctx, p, func(s *Store) (*VNData, error) { return s.GetVNData(id) })
}

// SearchVN returns VNs whose title contains the substring.
func (p *Pool) SearchVN(ctx context.Context, title string) ([]VN, error) {
	return run(ctx, p, func(s *Store) ([]VN, error) { return s.SearchVN(title) })
}

// PutVN inserts the VN if missing and returns the stored row.
func (p *Pool) PutVN(ctx context.Context, id uint64, title string) (VN, error) {
	return run(ctx, p, func(s *Store) (VN, error) { return s.PutVN(id, title) })
}

// PutHook inserts or replaces the hook keyed by (vn.ID, version).
func (p *Pool) PutHook(ctx context.Context, vn VN, version, code string) (Hook, error) {
	return run(ctx, p, func(s *Store) (Hook, error) { return s.PutHook(vn, version, code) })
}

// DeleteVN removes the VN and all of its hooks.
func (p *Pool) DeleteVN(ctx context.Context, id uint64) (int64, error) {
	return run(ctx, p, func(s *Store) (int64, error) { return s.DeleteVN(id) })
}

// DeleteHook removes the hook keyed by (vn.ID, version).
func (p *Pool) DeleteHook(ctx context.Context, vn VN, version string) (int64, error) {
	return run(ctx, p, func(s *Store) (int64, error) { return s.DeleteHook(vn, version) })
}

// CountVNs returns the number of tracked VNs.
func (p *Pool) CountVNs(ctx context.Context) (int64, error) {
	return run(ctx, p, func(s *Store) (int64, error) { return s.CountVNs() })
}

// CountHooks returns the number of stored hooks.
func (p *Pool) CountHooks(ctx context.Context) (int64, error) {
	return run(ctx, p, func(s *Store) (int64, error) { return s.CountHooks() })
}
