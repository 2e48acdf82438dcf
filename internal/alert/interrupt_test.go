package alert

import (
	"errors"
	"testing"

	"dispatch-realtime/internal/models"
	"dispatch-realtime/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAudio struct {
	plays, stops int
	playErr      error
}

func (a *fakeAudio) Play() error { a.plays++; return a.playErr }
func (a *fakeAudio) Stop()       { a.stops++ }

type fakeOverlay struct {
	shown  []string
	hidden int
}

func (o *fakeOverlay) ShowSOS(a models.SOSAlert) { o.shown = append(o.shown, a.SOSID) }
func (o *fakeOverlay) HideSOS()                  { o.hidden++ }

type fakeNav struct{ routes []string }

func (n *fakeNav) Navigate(route string) { n.routes = append(n.routes, route) }

type fakeSub struct {
	handler ws.Handler
	offs    int
}

func (s *fakeSub) On(_ string, h ws.Handler) ws.Subscription { s.handler = h; return ws.Subscription{} }
func (s *fakeSub) Off(ws.Subscription)                       { s.offs++; s.handler = nil }

type fixture struct {
	sub     *fakeSub
	audio   *fakeAudio
	overlay *fakeOverlay
	nav     *fakeNav
	i       *Interrupt
}

func newFixture() *fixture {
	f := &fixture{sub: &fakeSub{}, audio: &fakeAudio{}, overlay: &fakeOverlay{}, nav: &fakeNav{}}
	f.i = New(f.sub, f.audio, f.overlay, f.nav, zap.NewNop())
	return f
}

func (f *fixture) deliver(a models.SOSAlert) {
	f.sub.handler(a)
}

func TestDuplicateAlertIsNoop(t *testing.T) {
	f := newFixture()

	f.deliver(models.SOSAlert{SOSID: "x1", TripID: "t1"})
	f.deliver(models.SOSAlert{SOSID: "x1", TripID: "t1"})

	assert.Equal(t, []string{"x1"}, f.overlay.shown)
	assert.Equal(t, 1, f.audio.plays)
	active, ok := f.i.Active()
	require.True(t, ok)
	assert.Equal(t, "x1", active.SOSID)
}

func TestSecondAlertWhileActiveIsDropped(t *testing.T) {
	f := newFixture()

	assert.True(t, f.i.Raise(models.SOSAlert{SOSID: "x1"}))
	assert.False(t, f.i.Raise(models.SOSAlert{SOSID: "x2"}))

	active, _ := f.i.Active()
	assert.Equal(t, "x1", active.SOSID)
	assert.Equal(t, 1, f.audio.plays)
}

func TestAcknowledgeNavigatesToTrip(t *testing.T) {
	f := newFixture()
	f.deliver(models.SOSAlert{SOSID: "x1", TripID: "t42"})

	assert.True(t, f.i.Acknowledge())

	assert.Equal(t, 1, f.audio.stops)
	assert.Equal(t, 1, f.overlay.hidden)
	assert.Equal(t, []string{"/trips/t42"}, f.nav.routes)
	_, ok := f.i.Active()
	assert.False(t, ok)

	// a new alert may become active again
	assert.True(t, f.i.Raise(models.SOSAlert{SOSID: "x2"}))
}

func TestAcknowledgeWithoutTripDoesNotNavigate(t *testing.T) {
	f := newFixture()
	f.deliver(models.SOSAlert{SOSID: "x1"})

	assert.True(t, f.i.Acknowledge())
	assert.Equal(t, 1, f.audio.stops)
	assert.Empty(t, f.nav.routes)

	assert.False(t, f.i.Acknowledge())
}

func TestPlaybackFailureStillShowsOverlay(t *testing.T) {
	f := newFixture()
	f.audio.playErr = errors.New("autoplay blocked")

	assert.True(t, f.i.Raise(models.SOSAlert{SOSID: "x1"}))
	assert.Equal(t, []string{"x1"}, f.overlay.shown)
	_, ok := f.i.Active()
	assert.True(t, ok)
}

func TestCloseDiscardsWithoutNavigation(t *testing.T) {
	f := newFixture()
	f.deliver(models.SOSAlert{SOSID: "x1", TripID: "t1"})

	f.i.Close()
	f.i.Close()

	assert.Equal(t, 1, f.sub.offs)
	assert.Equal(t, 1, f.audio.stops)
	assert.Equal(t, 1, f.overlay.hidden)
	assert.Empty(t, f.nav.routes)
	_, ok := f.i.Active()
	assert.False(t, ok)
	assert.False(t, f.i.Raise(models.SOSAlert{SOSID: "x2"}))
}

func TestNonSOSEventIgnored(t *testing.T) {
	f := newFixture()
	f.sub.handler(models.GenericNotification{Name: models.EventNewNotification})

	assert.Empty(t, f.overlay.shown)
	_, ok := f.i.Active()
	assert.False(t, ok)
}
