package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/xid"

	"github.com/b0bbywan/odio-bluetooth/decode"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// AliasResolver names the device behind an object path. It must never fail.
type AliasResolver interface {
	AliasOf(path dbus.ObjectPath) string
}

// Agent answers pairing requests from bluetoothd. Its exported methods are
// exactly the org.bluez.Agent1 methods, since the whole method set is
// exported on the bus.
type Agent struct {
	resolver AliasResolver
	prompter Prompter

	mu      sync.Mutex
	current *agentSession
}

type agentSession struct {
	cancel context.CancelFunc
}

func NewAgent(resolver AliasResolver, prompter Prompter) *Agent {
	return &Agent{
		resolver: resolver,
		prompter: prompter,
	}
}

// begin opens the context of one interactive request. A request still
// pending is superseded.
func (a *Agent) begin() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &agentSession{cancel: cancel}

	a.mu.Lock()
	if a.current != nil {
		a.current.cancel()
	}
	a.current = s
	a.mu.Unlock()

	return ctx, func() {
		a.mu.Lock()
		if a.current == s {
			a.current = nil
		}
		a.mu.Unlock()
		cancel()
	}
}

func (a *Agent) request(kind RequestKind, device dbus.ObjectPath, format string, args ...interface{}) Request {
	alias := a.resolver.AliasOf(device)
	return Request{
		ID:      xid.New().String(),
		Kind:    kind,
		Device:  alias,
		Path:    string(device),
		Message: fmt.Sprintf(format, append([]interface{}{alias}, args...)...),
	}
}

func errCanceled() *dbus.Error {
	return dbus.NewError(ERROR_CANCELED, []interface{}{"Canceled by user"})
}

func errRejected() *dbus.Error {
	return dbus.NewError(ERROR_REJECTED, []interface{}{"Rejected"})
}

// cancelOrReject maps the outcome of an interactive step to the agent reply:
// an interruption is Canceled, a failure or refusal is Rejected. Interruption
// wins over an empty result.
func cancelOrReject[T any](value T, accepted bool, err error) (T, *dbus.Error) {
	var zero T
	if errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled) {
		return zero, errCanceled()
	}
	if err != nil || !accepted {
		return zero, errRejected()
	}
	return value, nil
}

// normalizePinCode keeps the first 16 characters of input, trims them, and
// accepts the result only when it is non-empty and alphanumeric.
func normalizePinCode(input string) (string, bool) {
	runes := []rune(input)
	if len(runes) > MAX_PINCODE_LEN {
		runes = runes[:MAX_PINCODE_LEN]
	}
	pin := strings.TrimSpace(string(runes))
	if pin == "" {
		return "", false
	}
	for _, r := range pin {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "", false
		}
	}
	return pin, true
}

func clampPasskey(n int64) uint32 {
	switch {
	case n < 0:
		return 0
	case n > MAX_PASSKEY:
		return MAX_PASSKEY
	}
	return uint32(n)
}

func (a *Agent) Release() *dbus.Error {
	logger.Debug("[bluetooth] agent released")
	return nil
}

func (a *Agent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	ctx, end := a.begin()
	defer end()

	req := a.request(RequestPinCode, device, "Enter PIN code for %s: ")
	input, err := a.prompter.ReadString(ctx, req)
	pin, ok := normalizePinCode(input)
	return cancelOrReject(pin, ok, err)
}

func (a *Agent) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	req := a.request(DisplayPinCode, device, "PIN code for %s: %s", pincode)
	req.Pincode = pincode
	a.prompter.Notify(req)
	return nil
}

func (a *Agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	ctx, end := a.begin()
	defer end()

	req := a.request(RequestPasskey, device, "Enter passkey for %s: ")
	n, err := a.prompter.ReadNumber(ctx, req)
	// Clamped values are never refused, 0 included.
	return cancelOrReject(clampPasskey(n), true, err)
}

func (a *Agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	req := a.request(DisplayPasskey, device, "Passkey for %s: %06d (%d typed)", passkey, entered)
	req.Passkey = passkey
	req.Entered = entered
	a.prompter.Notify(req)
	return nil
}

func (a *Agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	ctx, end := a.begin()
	defer end()

	req := a.request(RequestConfirmation, device, "Confirm passkey %06[2]d for %[1]s? ", passkey)
	req.Passkey = passkey
	yes, err := a.prompter.YesOrNo(ctx, req)
	_, derr := cancelOrReject(yes, yes, err)
	return derr
}

func (a *Agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	ctx, end := a.begin()
	defer end()

	req := a.request(RequestAuthorization, device, "Authorize pairing with %s? ")
	yes, err := a.prompter.YesOrNo(ctx, req)
	_, derr := cancelOrReject(yes, yes, err)
	return derr
}

func (a *Agent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	ctx, end := a.begin()
	defer end()

	service := decode.ServiceName(uuid)
	req := a.request(RequestService, device, "Authorize %[2]s for %[1]s? ", service)
	req.Service = service
	yes, err := a.prompter.YesOrNo(ctx, req)
	_, derr := cancelOrReject(yes, yes, err)
	return derr
}

// Cancel interrupts the pending prompt, if any.
func (a *Agent) Cancel() *dbus.Error {
	a.mu.Lock()
	s := a.current
	a.current = nil
	a.mu.Unlock()

	if s != nil {
		s.cancel()
	}
	a.prompter.Notify(Request{
		ID:      xid.New().String(),
		Kind:    NoticeCancelled,
		Message: "Pairing request cancelled",
	})
	return nil
}

// agentRegistration records how to undo each registration step.
type agentRegistration struct {
	names []string
	undo  []func() error
}

func (r *agentRegistration) add(name string, undo func() error) {
	r.names = append(r.names, name)
	r.undo = append(r.undo, undo)
}

// release undoes every step in reverse order. Failures are logged and
// never stop the remaining steps.
func (r *agentRegistration) release() {
	for i := len(r.undo) - 1; i >= 0; i-- {
		if err := r.undo[i](); err != nil {
			logger.Debug("[bluetooth] agent teardown %s: %v", r.names[i], err)
		}
	}
	r.names = nil
	r.undo = nil
}
