package store

import (
	"context"
	"errors"
	"sync"

	"github.com/warp/workforce-engine/generic"
)

// ErrInjected is the failure returned by Faulty once tripped.
var ErrInjected = errors.New("injected store failure")

// Faulty wraps a RecordStore and starts failing mutations after a budget of
// successful ones. Used to exercise partial span application.
type Faulty struct {
	generic.RecordStore

	mu         sync.Mutex
	writesLeft int // -1 = unlimited
	failReads  bool
}

// NewFaulty fails every Write/CompareAndWrite/Delete after writes successes.
func NewFaulty(inner generic.RecordStore, writes int) *Faulty {
	return &Faulty{RecordStore: inner, writesLeft: writes}
}

// Heal lifts the failure so a retry can run against the same data.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writesLeft = -1
	f.failReads = false
}

// Allow resets the budget to writes further successful mutations.
func (f *Faulty) Allow(writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writesLeft = writes
}

// FailReads makes every Read and List fail until Heal.
func (f *Faulty) FailReads() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = true
}

func (f *Faulty) spend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writesLeft < 0 {
		return nil
	}
	if f.writesLeft == 0 {
		return ErrInjected
	}
	f.writesLeft--
	return nil
}

func (f *Faulty) readable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return ErrInjected
	}
	return nil
}

func (f *Faulty) Read(ctx context.Context, path string) (generic.Record, bool, error) {
	if err := f.readable(); err != nil {
		return generic.Record{}, false, err
	}
	return f.RecordStore.Read(ctx, path)
}

func (f *Faulty) List(ctx context.Context, prefix string) ([]generic.Record, error) {
	if err := f.readable(); err != nil {
		return nil, err
	}
	return f.RecordStore.List(ctx, prefix)
}

func (f *Faulty) Write(ctx context.Context, path string, value []byte) (generic.Record, error) {
	if err := f.spend(); err != nil {
		return generic.Record{}, err
	}
	return f.RecordStore.Write(ctx, path, value)
}

func (f *Faulty) CompareAndWrite(ctx context.Context, path string, value []byte, version int64) (generic.Record, error) {
	if err := f.spend(); err != nil {
		return generic.Record{}, err
	}
	return f.RecordStore.CompareAndWrite(ctx, path, value, version)
}

func (f *Faulty) Delete(ctx context.Context, path string) error {
	if err := f.spend(); err != nil {
		return err
	}
	return f.RecordStore.Delete(ctx, path)
}
