package server

import "time"

// nowMillis is used only for round-trip timing, never for protocol content,
// so it is fine that it isn't deterministic/mockable.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
