package bluetooth

import (
	"context"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/puzpuzpuz/xsync/v3"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// signalRouter reads every signal delivered to the connection and hands
// PropertiesChanged notifications to the matching subscriptions.
type signalRouter struct {
	dispatch func(func()) bool
	subs     *xsync.MapOf[int64, *Subscription]
	ids      atomic.Int64
}

func newSignalRouter(dispatch func(func()) bool) *signalRouter {
	return &signalRouter{
		dispatch: dispatch,
		subs:     xsync.NewMapOf[int64, *Subscription](),
	}
}

func (r *signalRouter) add(path dbus.ObjectPath, iface, rule string, handler PropertyHandler) *Subscription {
	sub := &Subscription{
		id:      r.ids.Add(1),
		path:    path,
		iface:   iface,
		rule:    rule,
		handler: handler,
	}
	r.subs.Store(sub.id, sub)
	return sub
}

// remove reports whether sub was still live.
func (r *signalRouter) remove(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	_, ok := r.subs.LoadAndDelete(sub.id)
	return ok
}

func (r *signalRouter) live(sub *Subscription) bool {
	_, ok := r.subs.Load(sub.id)
	return ok
}

// listen consumes signals until ctx is done or the channel closes.
func (r *signalRouter) listen(ctx context.Context, signals <-chan *dbus.Signal) {
	defer logger.Debug("[bluetooth] signal router stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				logger.Debug("[bluetooth] signal channel closed")
				return
			}
			r.route(sig)
		}
	}
}

func (r *signalRouter) route(sig *dbus.Signal) {
	if sig == nil || sig.Name != idbus.PROP_CHANGED_SIGNAL {
		return
	}
	changed, iface, err := idbus.FilterSignal(sig)
	if err != nil {
		logger.Debug("[bluetooth] ignoring malformed signal from %s: %v", sig.Path, err)
		return
	}
	invalidated := idbus.Invalidated(sig)

	r.subs.Range(func(_ int64, sub *Subscription) bool {
		if sub.path != sig.Path || sub.iface != iface {
			return true
		}
		// Delivery happens on the loop; a release that lands in between wins.
		r.dispatch(func() {
			if r.live(sub) {
				sub.handler(changed, invalidated)
			}
		})
		return true
	})
}
