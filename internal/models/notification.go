package models

import (
	"time"

	"github.com/goccy/go-json"
)

const RoleAdmin = "admin"

// Identity is who the session belongs to. Without an ID the socket can only
// receive public broadcasts.
type Identity struct {
	Role string
	ID   string
}

func (i Identity) CanJoin() bool {
	return i.ID != ""
}

type NotificationType string

const (
	TypeNewDriverRegistration NotificationType = "new-driver-registration"
	TypeTripRequest           NotificationType = "trip-request"
	TypePaymentReceived       NotificationType = "payment-received"
	TypeDriverVerification    NotificationType = "driver-verification"
	TypeSystemAlert           NotificationType = "system-alert"
	TypeAdminNotification     NotificationType = "admin-notification"
	TypeOther                 NotificationType = "other"
)

func (t *NotificationType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch v := NotificationType(s); v {
	case TypeNewDriverRegistration, TypeTripRequest, TypePaymentReceived,
		TypeDriverVerification, TypeSystemAlert, TypeAdminNotification:
		*t = v
	default:
		*t = TypeOther
	}
	return nil
}

type Notification struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// UnmarshalJSON accepts both "id" and the backend's "_id".
func (n *Notification) UnmarshalJSON(b []byte) error {
	type plain Notification
	var aux struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*n = Notification(aux.plain)
	if n.ID == "" {
		n.ID = aux.MongoID
	}
	return nil
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
	Pagination    Pagination     `json:"pagination"`
}

// Send targets accepted by the backend fan-out.
const (
	TargetAllUsers   = "all-users"
	TargetAllDrivers = "all-drivers"
	TargetUser       = "user"
	TargetDriver     = "driver"
	TargetZone       = "zone"
)

type SendRequest struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Target   string `json:"target"`
	UserID   string `json:"userId,omitempty"`
	DriverID string `json:"driverId,omitempty"`
	ZoneName string `json:"zoneName,omitempty"`
}

type AudienceResult struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

type SendResult struct {
	Users   AudienceResult `json:"users"`
	Drivers AudienceResult `json:"drivers"`
}
