// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracking

import (
	"context"

	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/polling"
)

// Source is a position fix transport. Foreground watchers and background pollers are interchangeable
// implementations; both have to honour the same Directive semantics.
type Source interface {
	Name() string
	// Subscribe starts delivering fixes sampled according to d. The subscription ends when ctx is
	// cancelled or Close is called.
	Subscribe(ctx context.Context, d polling.Directive) (Subscription, error)
}

// Subscription is the handle of one running fix stream.
type Subscription interface {
	Fixes() <-chan geo.Fix
	Reconfigure(d polling.Directive) error
	Close() error
}
