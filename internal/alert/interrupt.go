// Package alert preempts the console with SOS alerts until an operator
// acknowledges them.
//
// Only one alert is held at a time. While one is active, a repeat of the same
// sosId is ignored and an alert with a different sosId is dropped, not queued.
package alert

import (
	"sync"

	"dispatch-realtime/internal/models"
	"dispatch-realtime/internal/ws"

	"go.uber.org/zap"
)

type Subscriber interface {
	On(event string, h ws.Handler) ws.Subscription
	Off(sub ws.Subscription)
}

// AudioPlayer loops the alarm. Stop pauses and rewinds to the start.
type AudioPlayer interface {
	Play() error
	Stop()
}

type Overlay interface {
	ShowSOS(alert models.SOSAlert)
	HideSOS()
}

type Navigator interface {
	Navigate(route string)
}

type Interrupt struct {
	sub     Subscriber
	audio   AudioPlayer
	overlay Overlay
	nav     Navigator
	logger  *zap.Logger

	mu     sync.Mutex
	active *models.SOSAlert
	reg    ws.Subscription
	closed bool
}

// New starts listening for SOS alerts on sub.
func New(sub Subscriber, audio AudioPlayer, overlay Overlay, nav Navigator, logger *zap.Logger) *Interrupt {
	i := &Interrupt{
		sub:     sub,
		audio:   audio,
		overlay: overlay,
		nav:     nav,
		logger:  logger.With(zap.String("component", "sos")),
	}
	i.reg = sub.On(models.EventSOSAlert, i.handle)
	return i
}

func (i *Interrupt) handle(ev models.NotificationEvent) {
	alert, ok := ev.(models.SOSAlert)
	if !ok {
		i.logger.Warn("[SOS] Unexpected event type", zap.String("event", ev.EventName()))
		return
	}
	i.Raise(alert)
}

// Raise activates alert unless one is already active. It reports whether the
// alert became active.
func (i *Interrupt) Raise(alert models.SOSAlert) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return false
	}
	if i.active != nil {
		if i.active.SOSID == alert.SOSID {
			i.logger.Debug("[SOS] Duplicate alert ignored", zap.String("sosId", alert.SOSID))
		} else {
			i.logger.Warn("[SOS] Alert dropped, another alert is active",
				zap.String("sosId", alert.SOSID),
				zap.String("activeSosId", i.active.SOSID))
		}
		return false
	}

	i.active = &alert
	i.logger.Info("[SOS] Alert raised",
		zap.String("sosId", alert.SOSID),
		zap.String("tripId", alert.TripID),
		zap.String("triggeredBy", alert.TriggeredBy))

	i.overlay.ShowSOS(alert)
	if err := i.audio.Play(); err != nil {
		i.logger.Warn("[SOS] Alarm playback failed, overlay only", zap.Error(err))
	}
	return true
}

// Acknowledge clears the active alert, silences the alarm and opens the
// alert's trip when it has one. It reports whether an alert was active.
func (i *Interrupt) Acknowledge() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.active == nil {
		return false
	}
	alert := *i.active
	i.active = nil

	i.audio.Stop()
	i.overlay.HideSOS()
	i.logger.Info("[SOS] Alert acknowledged", zap.String("sosId", alert.SOSID))

	if alert.TripID != "" {
		i.nav.Navigate(models.TripRoute(alert.TripID))
	}
	return true
}

func (i *Interrupt) Active() (models.SOSAlert, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active == nil {
		return models.SOSAlert{}, false
	}
	return *i.active, true
}

// Close deregisters the listener and silences the alarm. An active alert is
// discarded without navigating.
func (i *Interrupt) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return
	}
	i.closed = true
	i.sub.Off(i.reg)
	i.audio.Stop()
	if i.active != nil {
		i.logger.Info("[SOS] Discarding active alert on teardown", zap.String("sosId", i.active.SOSID))
		i.active = nil
		i.overlay.HideSOS()
	}
}
