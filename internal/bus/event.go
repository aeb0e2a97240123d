package bus

import "time"

// Event is a single broadcast delivered to subscribers.
type Event struct {
	Topic     string
	Timestamp time.Time
	Payload   any
}
