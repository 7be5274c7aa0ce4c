package core

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestStartScheduler(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.StartScheduler(ctx, "not a cron spec"); err == nil {
		t.Error("expected error for invalid spec")
	}
	if err := svc.StartScheduler(ctx, "0 3 * * *"); err != nil {
		t.Errorf("StartScheduler() error = %v", err)
	}
}

func TestWatchInput_TriggersRun(t *testing.T) {
	prev := WatchDebounce
	WatchDebounce = 50 * time.Millisecond
	defer func() { WatchDebounce = prev }()

	input := writeInput(t, serviceInput)
	svc := newTestService(t, ServiceOptions{InputPath: input})

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		_ = svc.Limiter().WaitForDrain(context.Background())
	}()

	if err := svc.WatchInput(ctx, input); err != nil {
		t.Fatalf("WatchInput() error = %v", err)
	}

	if err := os.WriteFile(input, []byte(serviceInput), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		runs := svc.List()
		if len(runs) > 0 && runs[0].Done() {
			if runs[0].Trigger != "watch" {
				t.Errorf("Trigger = %q, want watch", runs[0].Trigger)
			}
			if runs[0].Status != RunSucceeded {
				t.Errorf("Status = %s (%s), want succeeded", runs[0].Status, runs[0].Error)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("watch did not trigger a run")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatchInput_MissingDirectory(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	if err := svc.WatchInput(context.Background(), "/nonexistent/dir/products.tsv"); err == nil {
		t.Error("expected error for missing directory")
	}
}
