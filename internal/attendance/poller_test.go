package attendance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLoader struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
}

func (f *fakeLoader) Load(ctx context.Context) ([]Entry, Source) {
	n := f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return []Entry{{ID: "tick", Phone: string(rune('0' + n))}}, SourceRemote
}

func TestPollerLoadsImmediately(t *testing.T) {
	loader := &fakeLoader{}
	ticks := make(chan []Entry, 1)
	p := NewPoller(loader, time.Hour, func(e []Entry, _ Source) { ticks <- e })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case e := <-ticks:
		if len(e) != 1 {
			t.Errorf("unexpected tick payload %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no immediate load")
	}
	cancel()
	<-done
}

func TestPollerRepeatsOnInterval(t *testing.T) {
	loader := &fakeLoader{}
	var ticks atomic.Int32
	p := NewPoller(loader, 10*time.Millisecond, func([]Entry, Source) { ticks.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if ticks.Load() < 3 {
		t.Errorf("expected several ticks, got %d", ticks.Load())
	}
}

func TestPollerSkipsWhileInFlight(t *testing.T) {
	loader := &fakeLoader{release: make(chan struct{}), started: make(chan struct{}, 4)}
	p := NewPoller(loader, time.Hour, nil)
	ctx := context.Background()

	if !p.tick(ctx) {
		t.Fatal("first tick should start a load")
	}
	<-loader.started
	if p.tick(ctx) {
		t.Fatal("tick overlapped a running load")
	}

	loader.release <- struct{}{}
	p.wg.Wait()
	if !p.tick(ctx) {
		t.Fatal("tick after completion should start a load")
	}
	<-loader.started
	loader.release <- struct{}{}
	p.wg.Wait()

	if got := loader.calls.Load(); got != 2 {
		t.Errorf("expected 2 loads, got %d", got)
	}
}

func TestPollerDropsResultAfterCancel(t *testing.T) {
	loader := &fakeLoader{release: make(chan struct{}), started: make(chan struct{}, 1)}
	var delivered atomic.Bool
	p := NewPoller(loader, time.Hour, func([]Entry, Source) { delivered.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	<-loader.started
	cancel()
	close(loader.release)
	<-done

	if delivered.Load() {
		t.Errorf("result delivered after the view was torn down")
	}
}
