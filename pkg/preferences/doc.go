// Package preferences gates notification delivery by per-user settings:
// channel opt-outs, category opt-outs, and timezone-aware quiet hours.
//
// The Filter is consulted once, before a notification record is created; the
// delivery worker never re-checks it. Two behaviors are deliberate:
//
//   - Fail open. A preference-store outage must not silently drop
//     notifications, so lookup errors default to allow and are logged.
//   - Lazy defaults. A user without a stored preference gets everything
//     enabled and no quiet hours.
//
// Quiet-hours windows are expressed as "HH:MM" wall-clock times in the user's
// timezone and may wrap midnight (Start > End). The filter reports the window
// end so the dispatcher can defer rather than suppress.
package preferences
