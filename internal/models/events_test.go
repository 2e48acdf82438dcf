package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_SOSAlert(t *testing.T) {
	ev, err := ParseEvent(Frame{
		Event: EventSOSAlert,
		Data:  json.RawMessage(`{"sosId":"x1","tripId":"t9","triggeredBy":"u1","triggeredByName":"Ann","timestamp":"2024-05-01T10:00:00Z"}`),
	})
	require.NoError(t, err)

	alert, ok := ev.(SOSAlert)
	require.True(t, ok)
	assert.Equal(t, "x1", alert.SOSID)
	assert.Equal(t, "t9", alert.TripID)
	assert.Equal(t, "Ann", alert.TriggeredByName)
	assert.Equal(t, EventSOSAlert, ev.EventName())
}

func TestParseEvent_Malformed(t *testing.T) {
	cases := map[string]Frame{
		"no event name":  {Data: json.RawMessage(`{}`)},
		"sos empty body": {Event: EventSOSAlert},
		"sos no id":      {Event: EventSOSAlert, Data: json.RawMessage(`{"tripId":"t1"}`)},
		"sos wrong type": {Event: EventSOSAlert, Data: json.RawMessage(`[1,2]`)},
		"generic broken": {Event: EventNewNotification, Data: json.RawMessage(`{"title":`)},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEvent(f)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestParseEvent_Generic(t *testing.T) {
	ev, err := ParseEvent(Frame{Event: EventNewNotification, Data: json.RawMessage(`{"title":"hi"}`)})
	require.NoError(t, err)

	g, ok := ev.(GenericNotification)
	require.True(t, ok)
	assert.Equal(t, EventNewNotification, g.EventName())
}

func TestNotification_Unmarshal(t *testing.T) {
	var n Notification
	err := json.Unmarshal([]byte(`{"_id":"abc","title":"T","type":"weird-type","isRead":true}`), &n)
	require.NoError(t, err)

	assert.Equal(t, "abc", n.ID)
	assert.Equal(t, TypeOther, n.Type)
	assert.True(t, n.IsRead)

	err = json.Unmarshal([]byte(`{"id":"x","type":"trip-request"}`), &n)
	require.NoError(t, err)
	assert.Equal(t, "x", n.ID)
	assert.Equal(t, TypeTripRequest, n.Type)
}

func TestPushPayload_Route(t *testing.T) {
	sos := PushPayload{Data: PushData{Type: "sos-alert", TripID: "t7"}}
	assert.Equal(t, "/trips/t7", sos.Route())

	noTrip := PushPayload{Data: PushData{Type: "sos-alert"}}
	assert.Equal(t, NotificationsRoute, noTrip.Route())

	other := PushPayload{Data: PushData{Type: "payment-received", TripID: "t7"}}
	assert.Equal(t, NotificationsRoute, other.Route())
}
