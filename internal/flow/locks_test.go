package flow

import (
	"sync"
	"testing"
)

func TestSubjectLocks_SerialisesSameKey(t *testing.T) {
	locks := newSubjectLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("subject")
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("expected at most one holder, saw %d", maxSeen)
	}
	if n := locks.size(); n != 0 {
		t.Errorf("expected entries to be released, %d left", n)
	}
}

func TestSubjectLocks_DistinctKeysDoNotBlock(t *testing.T) {
	locks := newSubjectLocks()
	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	if n := locks.size(); n != 1 {
		t.Errorf("expected only key a to remain, got %d entries", n)
	}
	unlockA()
	if n := locks.size(); n != 0 {
		t.Errorf("expected no entries, got %d", n)
	}
}
