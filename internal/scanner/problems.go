package scanner

import (
	"errors"
	"fmt"
	"sync"
)

// Problem is a recoverable failure attributed to one file and, when known, one consumer.
type Problem struct {
	Path     string
	Consumer string
	Err      error
}

func (p Problem) Error() string {
	if p.Consumer == "" {
		return fmt.Sprintf("%s: %v", p.Path, p.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", p.Path, p.Consumer, p.Err)
}

func (p Problem) Unwrap() error {
	return p.Err
}

// Problems accumulates recoverable failures during a scan.
type Problems struct {
	mu    sync.Mutex
	items []Problem
}

// Add records a problem. A nil err is ignored.
func (p *Problems) Add(path, consumer string, err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, Problem{Path: path, Consumer: consumer, Err: err})
}

// All returns a copy of the recorded problems in the order they occurred.
func (p *Problems) All() []Problem {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Problem, len(p.items))
	copy(out, p.items)
	return out
}

// Len returns the number of recorded problems.
func (p *Problems) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// ByConsumer returns the problems attributed to consumer id.
func (p *Problems) ByConsumer(id string) []Problem {
	var out []Problem
	for _, item := range p.All() {
		if item.Consumer == id {
			out = append(out, item)
		}
	}
	return out
}

// Err joins every recorded problem, or returns nil when there are none.
func (p *Problems) Err() error {
	items := p.All()
	if len(items) == 0 {
		return nil
	}
	errs := make([]error, len(items))
	for i, item := range items {
		errs[i] = item
	}
	return errors.Join(errs...)
}
