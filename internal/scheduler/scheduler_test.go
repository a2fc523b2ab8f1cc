package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"foresight/internal/domain"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  map[string]int
	days   int
	fail   map[string]bool
	purged bool
}

func (f *fakeFetcher) FetchHistory(_ context.Context, assetID string, days int) ([]domain.PriceSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[assetID]++
	f.days = days
	if f.fail[assetID] {
		return nil, errors.New("upstream down")
	}
	return []domain.PriceSample{{Time: time.Unix(0, 0), Price: 1}, {Time: time.Unix(86400, 0), Price: 2}}, nil
}

func (f *fakeFetcher) Purge() { f.purged = true }

func TestRunOnce(t *testing.T) {
	f := &fakeFetcher{fail: map[string]bool{"dogecoin": true}}
	r := NewRefresher(f, []string{"bitcoin", "ethereum", "dogecoin"}, 365)

	rep, err := r.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected joined error for the failing asset")
	}
	if len(rep.Refreshed) != 2 || rep.Refreshed["bitcoin"] != 2 {
		t.Errorf("unexpected refreshed map: %v", rep.Refreshed)
	}
	if len(rep.Failed) != 1 || rep.Failed[0] != "dogecoin" {
		t.Errorf("Failed = %v, want [dogecoin]", rep.Failed)
	}
	if f.days != 365 {
		t.Errorf("range days = %d, want 365", f.days)
	}
	if !f.purged {
		t.Error("expected cache purge after run")
	}
	for _, a := range []string{"bitcoin", "ethereum", "dogecoin"} {
		if f.calls[a] != 1 {
			t.Errorf("calls[%s] = %d, want 1", a, f.calls[a])
		}
	}
}

func TestRunOnceAllSucceed(t *testing.T) {
	f := &fakeFetcher{}
	r := NewRefresher(f, []string{"bitcoin"}, 30)
	rep, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(rep.Failed) != 0 {
		t.Errorf("Failed = %v, want none", rep.Failed)
	}
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	r := NewRefresher(&fakeFetcher{}, nil, 30)
	if err := r.Schedule(context.Background(), "not a cron spec"); err == nil {
		t.Error("expected error for invalid spec")
	}
	if err := r.Schedule(context.Background(), "0 30 2 * * *"); err != nil {
		t.Errorf("Schedule: %v", err)
	}
}

func TestScheduledRunFires(t *testing.T) {
	f := &fakeFetcher{}
	r := NewRefresher(f, []string{"bitcoin"}, 30)
	if err := r.Schedule(context.Background(), "* * * * * *"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	r.Start()
	defer r.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		n := f.calls["bitcoin"]
		f.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("expected the scheduled job to run within 3s")
}
