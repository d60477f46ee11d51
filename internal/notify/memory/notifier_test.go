package memory

import (
	"context"
	"errors"
	"testing"
)

func TestNotifierStoresNotifications(t *testing.T) {
	t.Parallel()

	n := New()
	if err := n.Notify(context.Background(), "RTX 5090", "• Kanata: 2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n.FailWith(errors.New("offline"))
	if err := n.Notify(context.Background(), "RTX 5080", "• Online Store: 10"); err == nil {
		t.Fatal("expected injected error")
	}

	got := n.Notifications()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Title != "RTX 5090" || got[1].Message != "• Online Store: 10" {
		t.Fatalf("notifications not recorded correctly: %+v", got)
	}

	got[0].Title = "modified"
	if n.Notifications()[0].Title == "modified" {
		t.Fatal("expected Notifications() to return a copy")
	}
}
