// Package memory contains an in-memory notifier for tests and dry runs.
package memory

import (
	"context"
	"sync"
)

// Notification captures one Notify call.
type Notification struct {
	Title   string
	Message string
}

// Notifier stores notifications for inspection.
type Notifier struct {
	mu            sync.RWMutex
	notifications []Notification
	err           error
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailWith makes subsequent Notify calls record the notification and return err.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Notify records the notification.
func (n *Notifier) Notify(_ context.Context, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, Notification{Title: title, Message: message})
	return n.err
}

// Notifications returns the recorded notifications.
func (n *Notifier) Notifications() []Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Notification, len(n.notifications))
	copy(out, n.notifications)
	return out
}
