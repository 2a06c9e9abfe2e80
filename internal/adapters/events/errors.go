package events

import "errors"

// ErrNoBrokers is returned when the Kafka publisher has no broker to dial.
var ErrNoBrokers = errors.New("kafka publisher requires at least one broker")
