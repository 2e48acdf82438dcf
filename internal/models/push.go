package models

const (
	NotificationsRoute = "/notifications"

	pushTypeSOS = "sos-alert"
)

// TripRoute is the detail view of a trip.
func TripRoute(tripID string) string {
	return "/trips/" + tripID
}

type PushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type PushData struct {
	Type   string `json:"type,omitempty"`
	TripID string `json:"tripId,omitempty"`
}

// PushPayload is a foreground delivery from the push provider.
type PushPayload struct {
	Notification PushNotification `json:"notification"`
	Data         PushData         `json:"data"`
}

// Route is where clicking the toast for this payload leads.
func (p PushPayload) Route() string {
	if p.Data.Type == pushTypeSOS && p.Data.TripID != "" {
		return TripRoute(p.Data.TripID)
	}
	return NotificationsRoute
}

// Toast is a transient, clickable message.
type Toast struct {
	Title string
	Body  string
	Route string
}
