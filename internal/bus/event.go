package bus

import "time"

// Event represents a runtime event published on the bus.
//
// Kinds are dot-namespaced so subscribers can filter by prefix:
//
//	thread.*   open-thread sync (messages appended, contact updated,
//	           history exhausted)
//	panel.*    panel snapshot applied
//	notify.*   notification fan-out (toast shown/dismissed, sound, fleet alert)
//	gateway.*  gateway status changes, QR updates, history import progress
//	activity.* cadence tier changes from the activity monitor
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
