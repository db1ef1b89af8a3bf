// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package notify

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
)

type recordingCaller struct {
	method string
	args   [][]any
	nextID uint32
	err    error
}

func (r *recordingCaller) Call(method string, _ dbus.Flags, args ...any) *dbus.Call {
	r.method = method
	r.args = append(r.args, args)
	if r.err != nil {
		return &dbus.Call{Err: r.err}
	}
	r.nextID++
	return &dbus.Call{Body: []any{r.nextID}}
}

func TestNotifier_Notify(t *testing.T) {
	t.Run("notification is sent", func(t *testing.T) {
		caller := &recordingCaller{}
		notifier := NewWithCaller("arrival-alarm", caller)
		id, err := notifier.Notify(Notification{Summary: "Arrived", Body: "City Hall", Urgency: UrgencyCritical,
			Timeout: -1})
		if err != nil {
			t.Fatalf("failed to send notification: %s", err)
		}
		if id != 1 {
			t.Errorf("expected id 1, got %d", id)
		}
		if caller.method != dbusMethod {
			t.Errorf("expected method %s, got %s", dbusMethod, caller.method)
		}
		args := caller.args[0]
		if len(args) != 8 {
			t.Fatalf("expected 8 arguments, got %d", len(args))
		}
		if args[0] != "arrival-alarm" || args[2] != defaultIcon || args[3] != "Arrived" || args[4] != "City Hall" {
			t.Errorf("unexpected arguments: %v", args)
		}
		hints, ok := args[6].(map[string]dbus.Variant)
		if !ok {
			t.Fatalf("expected hints map, got %T", args[6])
		}
		if hints["urgency"].Value() != UrgencyCritical {
			t.Errorf("expected critical urgency, got %v", hints["urgency"].Value())
		}
	})
	t.Run("following notifications replace the previous one", func(t *testing.T) {
		caller := &recordingCaller{}
		notifier := NewWithCaller("arrival-alarm", caller)
		_, _ = notifier.Notify(Notification{Summary: "first"})
		_, _ = notifier.Notify(Notification{Summary: "second", Icon: "flag"})
		if replaces := caller.args[1][1]; replaces != uint32(1) {
			t.Errorf("expected replaces id 1, got %v", replaces)
		}
		if icon := caller.args[1][2]; icon != "flag" {
			t.Errorf("expected custom icon, got %v", icon)
		}
	})
	t.Run("call errors are returned", func(t *testing.T) {
		notifier := NewWithCaller("arrival-alarm", &recordingCaller{err: errors.New("no such service")})
		if _, err := notifier.Notify(Notification{Summary: "Arrived"}); err == nil {
			t.Error("expected notify to fail")
		}
	})
	t.Run("nil notifier fails", func(t *testing.T) {
		var notifier *Notifier
		if _, err := notifier.Notify(Notification{}); !errors.Is(err, ErrNoConnection) {
			t.Errorf("expected ErrNoConnection, got %v", err)
		}
	})
}
