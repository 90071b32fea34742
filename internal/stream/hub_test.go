package stream

import (
	"fmt"
	"testing"
	"time"

	"containeryard/internal/logquery"
	"containeryard/internal/record"
)

func recv(t *testing.T, sub *Subscription) *record.Record {
	t.Helper()
	select {
	case rec := <-sub.C:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
		return nil
	}
}

func TestHubPublishAndSubscribe(t *testing.T) {
	hub := NewHub(Config{HistorySize: 16})
	sub := hub.Subscribe(nil, 4)
	defer sub.Close()

	rec := record.New("docker", "hello world")
	hub.Publish(rec)

	got := recv(t, sub)
	if got.Raw != "hello world" {
		t.Errorf("Raw = %q, want %q", got.Raw, "hello world")
	}
	if got.ID != rec.ID {
		t.Errorf("ID = %v, want %v", got.ID, rec.ID)
	}
}

func TestHubSubscriberQueryFilter(t *testing.T) {
	hub := NewHub(Config{HistorySize: 16})
	sub := hub.Subscribe(logquery.Parse("level:error"), 4)
	defer sub.Close()

	info := record.New("docker", "all fine")
	info.Level = "info"
	hub.Publish(info)

	bad := record.New("docker", "something broke")
	bad.Level = "error"
	hub.Publish(bad)

	got := recv(t, sub)
	if got.Raw != "something broke" {
		t.Errorf("got %q, want the error record only", got.Raw)
	}
	select {
	case extra := <-sub.C:
		t.Errorf("unexpected extra record %q", extra.Raw)
	default:
	}
}

func TestHubNegatedQuery(t *testing.T) {
	hub := NewHub(Config{HistorySize: 16})
	sub := hub.Subscribe(logquery.Parse("-healthcheck"), 4)
	defer sub.Close()

	hub.Publish(record.New("docker", "GET /healthcheck 200"))
	hub.Publish(record.New("docker", "GET /api/users 200"))

	got := recv(t, sub)
	if got.Raw != "GET /api/users 200" {
		t.Errorf("got %q, want the non-healthcheck record", got.Raw)
	}
}

func TestHubSlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub(Config{HistorySize: 64})
	sub := hub.Subscribe(nil, 2)
	defer sub.Close()

	for i := range 5 {
		hub.Publish(record.New("tail", fmt.Sprintf("line %d", i)))
	}

	// Buffer of 2 with 5 published: the oldest three were evicted.
	if got := sub.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	first := recv(t, sub)
	if first.Raw != "line 3" {
		t.Errorf("first buffered record = %q, want %q", first.Raw, "line 3")
	}
	second := recv(t, sub)
	if second.Raw != "line 4" {
		t.Errorf("second buffered record = %q, want %q", second.Raw, "line 4")
	}
}

func TestHubRecent(t *testing.T) {
	hub := NewHub(Config{HistorySize: 4})
	for i := range 6 {
		rec := record.New("tail", fmt.Sprintf("line %d", i))
		if i%2 == 0 {
			rec.Level = "error"
		}
		hub.Publish(rec)
	}

	t.Run("ring keeps newest", func(t *testing.T) {
		all := hub.Recent(nil, 0)
		if len(all) != 4 {
			t.Fatalf("len = %d, want 4", len(all))
		}
		if all[0].Raw != "line 2" || all[3].Raw != "line 5" {
			t.Errorf("got %q .. %q, want line 2 .. line 5", all[0].Raw, all[3].Raw)
		}
	})

	t.Run("query filter", func(t *testing.T) {
		errs := hub.Recent(logquery.Parse("level:error"), 0)
		if len(errs) != 2 {
			t.Fatalf("len = %d, want 2", len(errs))
		}
		if errs[0].Raw != "line 2" || errs[1].Raw != "line 4" {
			t.Errorf("got %q, %q", errs[0].Raw, errs[1].Raw)
		}
	})

	t.Run("limit keeps newest", func(t *testing.T) {
		limited := hub.Recent(nil, 2)
		if len(limited) != 2 {
			t.Fatalf("len = %d, want 2", len(limited))
		}
		if limited[0].Raw != "line 4" || limited[1].Raw != "line 5" {
			t.Errorf("got %q, %q, want line 4, line 5", limited[0].Raw, limited[1].Raw)
		}
	})
}

func TestHubClose(t *testing.T) {
	hub := NewHub(Config{HistorySize: 4})
	sub := hub.Subscribe(nil, 2)
	sub.Close()
	sub.Close() // idempotent

	if _, open := <-sub.C; open {
		t.Error("channel still open after Close")
	}

	// Publishing after close must not panic.
	hub.Publish(record.New("docker", "late"))

	if got := hub.Stats().Subscribers; got != 0 {
		t.Errorf("Subscribers = %d, want 0", got)
	}
}

func TestHubStats(t *testing.T) {
	hub := NewHub(Config{HistorySize: 8})
	sub := hub.Subscribe(nil, 4)
	defer sub.Close()

	hub.Publish(record.New("docker", "one"))
	hub.Publish(record.New("docker", "two"))

	stats := hub.Stats()
	if stats.Published != 2 {
		t.Errorf("Published = %d, want 2", stats.Published)
	}
	if stats.Subscribers != 1 {
		t.Errorf("Subscribers = %d, want 1", stats.Subscribers)
	}
	if stats.HistoryLen != 2 || stats.HistoryCap != 8 {
		t.Errorf("history = %d/%d, want 2/8", stats.HistoryLen, stats.HistoryCap)
	}
}

func TestSubscriptionIdentity(t *testing.T) {
	hub := NewHub(Config{})
	a := hub.Subscribe(nil, 1)
	b := hub.Subscribe(nil, 1)
	defer a.Close()
	defer b.Close()

	if a.ID == b.ID {
		t.Error("subscription IDs should be unique")
	}
	if a.Name == "" || b.Name == "" {
		t.Error("subscriptions should have generated names")
	}
}
