package device

import "log/slog"

// CreateHook is consulted before every object creation. A non-nil error makes the
// creation fail with that error wrapped in a *Error.
type CreateHook func(kind ObjectKind, label string) error

type options struct {
	logger *slog.Logger
	hook   CreateHook
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}

// DeviceBuilderOption is a functional option used to configure a Device during construction.
type DeviceBuilderOption func(*options)

// WithLogger sets the structured logger. Defaults to slog.Default().
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - DeviceBuilderOption: a function that sets the logger
func WithLogger(l *slog.Logger) DeviceBuilderOption {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCreateHook installs a hook that can veto object creation, e.g. to simulate driver
// rejection.
//
// Parameters:
//   - hook: the hook
//
// Returns:
//   - DeviceBuilderOption: a function that sets the hook
func WithCreateHook(hook CreateHook) DeviceBuilderOption {
	return func(o *options) {
		o.hook = hook
	}
}

func (o *options) check(kind ObjectKind, label string) error {
	if o.hook == nil {
		return nil
	}
	return o.hook(kind, label)
}
