package pacer_test

import (
	"testing"
	"time"

	"github.com/bdobrica/Sayuri/internal/sayuri/pacer"
)

func TestDefaultsApplied(t *testing.T) {
	p := pacer.New(pacer.Config{})
	if p.NormalDelay() != pacer.DefaultNormalDelay {
		t.Errorf("NormalDelay = %v, want %v", p.NormalDelay(), pacer.DefaultNormalDelay)
	}
}

func TestPaceBlocksForNormalDelay(t *testing.T) {
	p := pacer.New(pacer.Config{
		NormalDelay:  30 * time.Millisecond,
		FailureDelay: 10 * time.Millisecond,
		MaxPerHour:   1_000_000,
	})

	start := time.Now()
	p.Pace(true)
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Pace(true) returned after %v, want >= 30ms", elapsed)
	}
}

func TestPaceUsesShorterFailureDelay(t *testing.T) {
	p := pacer.New(pacer.Config{
		NormalDelay:  200 * time.Millisecond,
		FailureDelay: 10 * time.Millisecond,
		MaxPerHour:   1_000_000,
	})

	start := time.Now()
	p.Pace(false)
	elapsed := time.Since(start)
	if elapsed < 10*time.Millisecond {
		t.Errorf("Pace(false) returned after %v, want >= 10ms", elapsed)
	}
	if elapsed >= 200*time.Millisecond {
		t.Errorf("Pace(false) took %v, must not wait the full normal delay", elapsed)
	}
}

func TestLimiterBurstAbsorbsSmallRuns(t *testing.T) {
	p := pacer.New(pacer.Config{
		NormalDelay:  time.Millisecond,
		FailureDelay: time.Millisecond,
		MaxPerHour:   100_000,
	})

	start := time.Now()
	for i := 0; i < 5; i++ {
		p.Pace(true)
	}
	// 5 fixed delays of 1ms; the limiter burst of 100000 absorbs all of
	// them, so total stays close to the fixed delays alone.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("pacing 5 actions took %v, limiter should not throttle under burst", elapsed)
	}
}
