package auth

import (
	"context"
	"runtime"
	"sync"
)

// HashPool runs bcrypt work on a fixed number of goroutines so that slow
// hashes queue up here instead of occupying request handlers.
type HashPool struct {
	creds *CredentialService
	jobs  chan func()

	wg        sync.WaitGroup
	closeOnce sync.Once
	closing   chan struct{}
	stopped   chan struct{}
}

// NewHashPool starts workers goroutines that serve up to queue pending jobs.
// Non-positive workers default to GOMAXPROCS; a negative queue means unbuffered.
func NewHashPool(creds *CredentialService, workers, queue int) *HashPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if queue < 0 {
		queue = 0
	}
	p := &HashPool{
		creds:   creds,
		jobs:    make(chan func(), queue),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *HashPool) run() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.closing:
			// drain what was already accepted
			for {
				select {
				case job := <-p.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// Close stops accepting work, finishes queued jobs and waits for the workers.
func (p *HashPool) Close() {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.wg.Wait()
		close(p.stopped)
	})
}

// Pending returns the number of jobs waiting for a worker.
func (p *HashPool) Pending() int { return len(p.jobs) }

// Capacity returns the queue size.
func (p *HashPool) Capacity() int { return cap(p.jobs) }

func (p *HashPool) submit(ctx context.Context, job func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.closing:
		return ErrPoolClosed
	default:
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closing:
		return ErrPoolClosed
	}
}

type hashResult struct {
	hash string
	err  error
}

// Hash hashes password on the pool. It returns ctx.Err() if the context ends
// before a worker picks the job up or finishes it.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	res := make(chan hashResult, 1)
	err := p.submit(ctx, func() {
		if ctx.Err() != nil {
			res <- hashResult{err: ctx.Err()}
			return
		}
		h, err := p.creds.Hash(password)
		res <- hashResult{hash: h, err: err}
	})
	if err != nil {
		return "", err
	}
	select {
	case r := <-res:
		return r.hash, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.stopped:
		return "", ErrPoolClosed
	}
}

// Verify checks password against hash on the pool. The error is non-nil only
// when the work could not run; a wrong password is (false, nil).
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	res := make(chan bool, 1)
	err := p.submit(ctx, func() {
		if ctx.Err() != nil {
			res <- false
			return
		}
		res <- p.creds.Verify(password, hash)
	})
	if err != nil {
		return false, err
	}
	select {
	case ok := <-res:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-p.stopped:
		return false, ErrPoolClosed
	}
}
