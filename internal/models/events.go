package models

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Socket event names
const (
	EventJoinRoom        = "admin-join-room"
	EventSOSAlert        = "admin-sos-alert"
	EventNewNotification = "admin-new-notification"
)

// ErrMalformedPayload is returned when an event body cannot be turned into a
// typed value.
var ErrMalformedPayload = errors.New("malformed event payload")

// Frame is the envelope of every message on the real-time socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoomData struct {
	Role    string `json:"role"`
	AdminID string `json:"adminId"`
}

// NotificationEvent is implemented by every typed event the core reacts to.
type NotificationEvent interface {
	EventName() string
}

// SOSAlert is an ephemeral emergency signal raised for a trip.
type SOSAlert struct {
	SOSID           string `json:"sosId"`
	TripID          string `json:"tripId"`
	TriggeredBy     string `json:"triggeredBy"`
	TriggeredByName string `json:"triggeredByName,omitempty"`
	Message         string `json:"message,omitempty"`
	Timestamp       string `json:"timestamp"`
}

func (SOSAlert) EventName() string { return EventSOSAlert }

// GenericNotification is any "new notification" event. Its body is kept raw;
// the feed only needs to know that something arrived.
type GenericNotification struct {
	Name string
	Raw  json.RawMessage
}

func (g GenericNotification) EventName() string { return g.Name }

// ParseSOSAlert decodes and validates an admin-sos-alert body.
func ParseSOSAlert(data []byte) (SOSAlert, error) {
	var alert SOSAlert
	if len(data) == 0 {
		return alert, fmt.Errorf("%s: empty body: %w", EventSOSAlert, ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, &alert); err != nil {
		return alert, fmt.Errorf("%s: %v: %w", EventSOSAlert, err, ErrMalformedPayload)
	}
	if alert.SOSID == "" {
		return alert, fmt.Errorf("%s: missing sosId: %w", EventSOSAlert, ErrMalformedPayload)
	}
	return alert, nil
}

// ParseEvent turns a socket frame into its tagged variant.
func ParseEvent(f Frame) (NotificationEvent, error) {
	switch f.Event {
	case "":
		return nil, fmt.Errorf("frame without event name: %w", ErrMalformedPayload)
	case EventSOSAlert:
		alert, err := ParseSOSAlert(f.Data)
		if err != nil {
			return nil, err
		}
		return alert, nil
	default:
		if len(f.Data) > 0 && !json.Valid(f.Data) {
			return nil, fmt.Errorf("%s: invalid json body: %w", f.Event, ErrMalformedPayload)
		}
		return GenericNotification{Name: f.Event, Raw: f.Data}, nil
	}
}
