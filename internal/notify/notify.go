// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package notify shows desktop notifications through the org.freedesktop.Notifications D-Bus service.
package notify

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	dbusDest   = "org.freedesktop.Notifications"
	dbusPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	dbusMethod = "org.freedesktop.Notifications.Notify"

	// Urgency hint levels of the freedesktop notification protocol.
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2

	defaultIcon = "mark-location"
)

var ErrNoConnection = errors.New("no session bus connection")

// Caller is the part of a D-Bus object used to send notifications.
type Caller interface {
	Call(method string, flags dbus.Flags, args ...any) *dbus.Call
}

// Notification is a single desktop notification.
type Notification struct {
	Summary string
	Body    string
	Icon    string
	Urgency byte
	// Timeout in milliseconds. -1 leaves it to the server, 0 never expires.
	Timeout int32
}

// Notifier sends notifications and replaces the previous one it sent.
type Notifier struct {
	appName string
	caller  Caller

	mu     sync.Mutex
	lastID uint32
}

// New connects to the session bus and returns a Notifier for appName.
func New(appName string) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return NewWithCaller(appName, conn.Object(dbusDest, dbusPath)), nil
}

// NewWithCaller returns a Notifier that sends through caller.
func NewWithCaller(appName string, caller Caller) *Notifier {
	return &Notifier{appName: appName, caller: caller}
}

// Notify sends msg and returns the id assigned by the notification server.
func (n *Notifier) Notify(msg Notification) (uint32, error) {
	if n == nil || n.caller == nil {
		return 0, ErrNoConnection
	}
	icon := msg.Icon
	if icon == "" {
		icon = defaultIcon
	}
	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(msg.Urgency)}

	n.mu.Lock()
	defer n.mu.Unlock()
	call := n.caller.Call(dbusMethod, 0, n.appName, n.lastID, icon, msg.Summary, msg.Body, []string{},
		hints, msg.Timeout)
	if call.Err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("failed to read notification id: %w", err)
	}
	n.lastID = id
	return id, nil
}
