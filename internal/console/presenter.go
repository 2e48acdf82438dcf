package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"dispatch-realtime/internal/feed"
	"dispatch-realtime/internal/models"
)

// toastTTL is how long a toast stays clickable.
const toastTTL = 5 * time.Second

// Presenter renders the operator-facing state to a terminal: the SOS overlay,
// toasts, the unread badge and the current route.
type Presenter struct {
	out io.Writer
	now func() time.Time

	mu          sync.Mutex
	route       string
	sos         *models.SOSAlert
	lastToast   *models.Toast
	toastExpiry time.Time
	badge       int
}

func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out, now: time.Now, route: "/", badge: -1}
}

func (p *Presenter) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *Presenter) ShowSOS(a models.SOSAlert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sos = &a

	who := a.TriggeredByName
	if who == "" {
		who = a.TriggeredBy
	}
	bar := strings.Repeat("!", 60)
	p.printf("\n%s\n  SOS ALERT %s\n  trip: %s\n  from: %s\n", bar, a.SOSID, a.TripID, who)
	if a.Message != "" {
		p.printf("  %s\n", a.Message)
	}
	p.printf("  acknowledge: POST /sos/ack\n%s\n", bar)
}

func (p *Presenter) HideSOS() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sos != nil {
		p.printf("[sos %s cleared]\n", p.sos.SOSID)
	}
	p.sos = nil
}

func (p *Presenter) Toast(t models.Toast) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastToast = &t
	p.toastExpiry = p.now().Add(toastTTL)
	p.printf("[toast] %s: %s (click -> %s)\n", t.Title, t.Body, t.Route)
}

// Navigate changes the route and dismisses any visible toast.
func (p *Presenter) Navigate(route string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.route = route
	p.lastToast = nil
	p.printf("[navigate] %s\n", route)
}

// Badge renders the unread count when it changes.
func (p *Presenter) Badge(s feed.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.UnreadCount == p.badge {
		return
	}
	p.badge = s.UnreadCount
	p.printf("[notifications] %d unread\n", s.UnreadCount)
}

// ClickToast follows the most recent toast while it is still showing. The
// toast is dismissed either way.
func (p *Presenter) ClickToast() (string, bool) {
	p.mu.Lock()
	t := p.lastToast
	expired := p.now().After(p.toastExpiry)
	p.lastToast = nil
	p.mu.Unlock()

	if t == nil || expired {
		return "", false
	}
	p.Navigate(t.Route)
	return t.Route, true
}

func (p *Presenter) Route() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.route
}
