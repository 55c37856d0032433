package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFires(t *testing.T, fires *atomic.Int32) {
	t.Helper()
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("handler did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				return
			}
		}
	}
}

func TestSchedulerFires(t *testing.T) {
	var fires atomic.Int32
	sched := New("* * * * * *", func() { fires.Add(1) })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	waitFires(t, &fires)
}

func TestSchedulerEmptyScheduleNeverFires(t *testing.T) {
	var fires atomic.Int32
	sched := New("", func() { fires.Add(1) })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	time.Sleep(1500 * time.Millisecond)

	if n := fires.Load(); n != 0 {
		t.Errorf("expected 0 fires without a schedule, got %d", n)
	}
}

func TestSchedulerInvalidSchedule(t *testing.T) {
	sched := New("every tuesday", func() {})
	if err := sched.Start(); err == nil {
		sched.Stop()
		t.Fatal("expected error for invalid schedule")
	}
	sched.Stop()
}

func TestSchedulerReload(t *testing.T) {
	var fires atomic.Int32
	sched := New("", func() { fires.Add(1) })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if err := sched.Reload("@every 1s"); err != nil {
		t.Fatal(err)
	}
	waitFires(t, &fires)
}

func TestValidate(t *testing.T) {
	for _, ok := range []string{"*/5 * * * *", "0 */10 * * * *", "@hourly", "@every 90s"} {
		if err := Validate(ok); err != nil {
			t.Errorf("Validate(%q): %v", ok, err)
		}
	}
	if err := Validate("61 * * * *"); err == nil {
		t.Error("expected error for out-of-range minute")
	}
}
