package engine

import (
	"context"
	"testing"
	"time"
)

func runEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitDay(t *testing.T, started <-chan uint64) uint64 {
	t.Helper()
	select {
	case d := <-started:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a day to start")
	}
	return 0
}

func TestTriggerCoalescesWhileRunning(t *testing.T) {
	e := NewEngine(time.Hour, 0)
	started := make(chan uint64, 10)
	release := make(chan struct{})
	e.OnDay = func(ctx context.Context, day uint64) {
		started <- day
		<-release
	}
	runEngine(t, e)

	e.Trigger()
	if d := waitDay(t, started); d != 1 {
		t.Fatalf("first day = %d, want 1", d)
	}
	if st := e.Status(); st.State != StateRunning {
		t.Fatalf("state during a day = %s, want running", st.State)
	}

	if !e.Trigger() {
		t.Fatal("trigger during a running day should queue")
	}
	if e.Trigger() {
		t.Fatal("second trigger during a running day should coalesce")
	}
	close(release)

	if d := waitDay(t, started); d != 2 {
		t.Fatalf("queued day = %d, want 2", d)
	}
	select {
	case d := <-started:
		t.Fatalf("coalesced fire ran as day %d", d)
	case <-time.After(50 * time.Millisecond):
	}
	if e.Day() != 2 {
		t.Fatalf("day = %d, want 2", e.Day())
	}
}

func TestPausedSkipsTimerButNotTrigger(t *testing.T) {
	e := NewEngine(5*time.Millisecond, 10)
	started := make(chan uint64, 100)
	e.OnDay = func(ctx context.Context, day uint64) { started <- day }
	e.Pause()
	runEngine(t, e)

	time.Sleep(40 * time.Millisecond)
	if e.Day() != 10 {
		t.Fatalf("paused engine advanced to day %d", e.Day())
	}

	e.Trigger()
	if d := waitDay(t, started); d != 11 {
		t.Fatalf("manual day = %d, want 11", d)
	}

	e.Resume()
	if d := waitDay(t, started); d != 12 {
		t.Fatalf("timer day after resume = %d, want 12", d)
	}
}

func TestDayPanicDoesNotKillLoop(t *testing.T) {
	e := NewEngine(time.Hour, 0)
	started := make(chan uint64, 10)
	e.OnDay = func(ctx context.Context, day uint64) {
		started <- day
		if day == 1 {
			panic("boom")
		}
	}
	runEngine(t, e)

	e.Trigger()
	waitDay(t, started)
	e.Trigger()
	if d := waitDay(t, started); d != 2 {
		t.Fatalf("day after panic = %d, want 2", d)
	}
}

func TestRunTwice(t *testing.T) {
	e := NewEngine(time.Hour, 0)
	runEngine(t, e)
	time.Sleep(10 * time.Millisecond)
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("second Run should fail")
	}
}

func TestSimDate(t *testing.T) {
	tests := []struct {
		day    uint64
		want   string
		season int
	}{
		{0, "Day 0", 1},
		{1, "Season 1 Day 1", 1},
		{30, "Season 1 Day 30", 1},
		{31, "Season 2 Day 1", 2},
		{95, "Season 4 Day 5", 4},
	}
	for _, tt := range tests {
		if got := SimDate(tt.day, 30); got != tt.want {
			t.Errorf("SimDate(%d) = %q, want %q", tt.day, got, tt.want)
		}
		if got := SeasonOf(tt.day, 30); got != tt.season {
			t.Errorf("SeasonOf(%d) = %d, want %d", tt.day, got, tt.season)
		}
	}
}
