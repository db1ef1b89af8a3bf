// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import "github.com/wneessen/arrival-alarm/internal/phase"

const ArrivedIcon = "🏁"

// PhaseIcons maps tracking phases to single emoji icons.
var PhaseIcons = map[phase.Phase]string{
	phase.Rest:     "💤",
	phase.Approach: "🧭",
	phase.Prepare:  "🔔",
	phase.Target:   "🎯",
}

// compassPoints are the eight principal winds, starting at north.
var compassPoints = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
