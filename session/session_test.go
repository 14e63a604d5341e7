package session

import (
	"errors"
	"testing"
	"time"
)

func TestStartRejectsDuplicatePlanID(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)
	defer r.Shutdown()

	if _, err := r.Start("plan-1"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, err := r.Start("plan-1"); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("second Start err = %v, want ErrSessionExists", err)
	}
	if _, err := r.Start("plan-2"); err != nil {
		t.Fatalf("independent plan Start: %v", err)
	}
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	s := newSession("plan-1")
	s.SetStatus(StatusStreaming)
	s.SetStatus(StatusCompleted)
	s.SetStatus(StatusFailed) // must not leave terminal state
	if got := s.Status(); got != StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
}

func TestSubscribeReplaysThenDeliversLive(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)
	defer r.Shutdown()

	s, err := r.Start("plan-1")
	if err != nil {
		t.Fatal(err)
	}
	s.AppendProgress("status: streaming")
	s.AppendProgress("iteration 1: contacting model")

	ch, cancel := s.Subscribe()
	defer cancel()

	s.AppendProgress("executing tool get_financial_summary")
	s.SetStatus(StatusCompleted)
	r.Finish(s)

	var got []string
	for line := range ch {
		got = append(got, line)
	}
	want := []string{
		"status: streaming",
		"iteration 1: contacting model",
		"executing tool get_financial_summary",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLateSubscriberAfterFinishStillReplays(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)
	defer r.Shutdown()

	s, _ := r.Start("plan-1")
	s.AppendProgress("one")
	s.AppendProgress("two")
	s.SetStatus(StatusCompleted)
	r.Finish(s)

	ch, cancel := s.Subscribe()
	defer cancel()

	var got []string
	for line := range ch {
		got = append(got, line)
	}
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("replay = %v", got)
	}
}

func TestFinishedSessionExpires(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)
	defer r.Shutdown()

	s, _ := r.Start("plan-1")
	s.SetStatus(StatusFailed)
	r.Finish(s)

	if !s.expired(time.Now().Add(2 * time.Minute)) {
		t.Fatal("failed session should expire after its grace period")
	}
	if s.expired(time.Now()) {
		t.Fatal("session must linger through the grace period")
	}
}

func TestAppendAfterCloseIsIgnored(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)
	defer r.Shutdown()

	s, _ := r.Start("plan-1")
	s.AppendProgress("one")
	s.SetStatus(StatusCompleted)
	r.Finish(s)
	s.AppendProgress("after close")

	if got := s.Progress(); len(got) != 1 {
		t.Fatalf("progress = %v, want single entry", got)
	}
}
