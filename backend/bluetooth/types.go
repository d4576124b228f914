package bluetooth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/odio-bluetooth/backend/internal/dbus"
)

// KindRemoteUnavailable tags errors caused by an unreachable daemon or object.
const KindRemoteUnavailable ftag.Kind = "REMOTE_UNAVAILABLE"

var (
	ErrCapabilityUnsupported = errors.New("bluetooth: capability not supported")
	ErrNotSubscribed         = errors.New("bluetooth: subscription already released")
	ErrNoAdapter             = errors.New("bluetooth: no adapter available")
	ErrNotReady              = errors.New("bluetooth: device adapter unknown")
	ErrLoopStopped           = errors.New("bluetooth: event loop stopped")
	ErrPromptUnavailable     = errors.New("bluetooth: agent requests are not answered over the API")
)

// RemoteUnavailableError is the root of every error caused by the daemon or
// the addressed object being unreachable.
type RemoteUnavailableError struct {
	Path dbus.ObjectPath
	Err  error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("bluetooth: %s unavailable: %v", e.Path, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Err }

// IsRemoteUnavailable reports whether err was caused by an unreachable remote.
func IsRemoteUnavailable(err error) bool {
	var target *RemoteUnavailableError
	return errors.As(err, &target)
}

type DeviceNotFoundError struct {
	ID string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("bluetooth: device %q not found", e.ID)
}

type AlreadyRegisteredError struct {
	Capability Capability
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("bluetooth: a plugin is already registered for %s", e.Capability)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bluetooth: invalid %s: %s", e.Field, e.Reason)
}

type RequestNotFoundError struct {
	ID string
}

func (e *RequestNotFoundError) Error() string {
	return fmt.Sprintf("bluetooth: no pending agent request %q", e.ID)
}

var unavailableNames = map[string]struct{}{
	"org.freedesktop.DBus.Error.ServiceUnknown": {},
	"org.freedesktop.DBus.Error.NameHasNoOwner": {},
	"org.freedesktop.DBus.Error.UnknownObject":  {},
	"org.freedesktop.DBus.Error.NoReply":        {},
	"org.freedesktop.DBus.Error.Disconnected":   {},
	"org.freedesktop.DBus.Error.Timeout":        {},
	ERROR_DOES_NOT_EXIST:                        {},
}

// unreachable reports whether a raw call error means the remote is gone.
func unreachable(err error) bool {
	var timeout *idbus.TimeoutError
	if errors.As(err, &timeout) || errors.Is(err, dbus.ErrClosed) {
		return true
	}
	_, ok := unavailableNames[errorName(err)]
	return ok
}

// errorName returns the D-Bus error name carried by err, if any.
func errorName(err error) string {
	var derr dbus.Error
	if errors.As(err, &derr) {
		return derr.Name
	}
	var pderr *dbus.Error
	if errors.As(err, &pderr) {
		return pderr.Name
	}
	return ""
}

func wrapUnavailable(err error, at string, path dbus.ObjectPath) error {
	return fault.Wrap(&RemoteUnavailableError{Path: path, Err: err},
		fctx.With(context.Background(), "error_at", at, "path", string(path)),
		ftag.With(KindRemoteUnavailable),
		fmsg.With("Bluetooth daemon or object unreachable"),
	)
}

func wrapCall(err error, at string, path dbus.ObjectPath) error {
	if unreachable(err) {
		return wrapUnavailable(err, at, path)
	}
	return fault.Wrap(err,
		fctx.With(context.Background(), "error_at", at, "path", string(path)),
		ftag.With(ftag.Internal),
		fmsg.With("Bluetooth call failed"),
	)
}
