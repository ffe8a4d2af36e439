package mqtt

import "errors"

// Sentinel errors for broker operations. Callers match them with
// errors.Is; the ingest pipeline treats ErrNotConnected as transient
// since the client reconnects on its own.
var (
	// ErrNotConnected: the operation needs a live broker session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed: the initial connect to the broker failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps broker-side publish failures.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps broker-side subscribe failures.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps broker-side unsubscribe failures.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS: sensor readings use QoS 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic: the topic is empty.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
