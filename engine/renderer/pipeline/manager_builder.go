package pipeline

import "log/slog"

// ManagerBuilderOption is a functional option used to configure a Manager during construction.
type ManagerBuilderOption func(*manager)

// WithLogger sets the structured logger used by the manager and its builder.
// Defaults to slog.Default().
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ManagerBuilderOption: a function that sets the logger
func WithLogger(l *slog.Logger) ManagerBuilderOption {
	return func(m *manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBuilderOptions passes options through to the Builder the manager creates.
//
// Parameters:
//   - opts: the builder options
//
// Returns:
//   - ManagerBuilderOption: a function that stores the builder options
func WithBuilderOptions(opts ...BuilderOption) ManagerBuilderOption {
	return func(m *manager) {
		m.builderOpts = append(m.builderOpts, opts...)
	}
}

// WithBuildObserver registers a function called after every build attempt, initial and rebuild.
func WithBuildObserver(fn BuildObserver) ManagerBuilderOption {
	return func(m *manager) {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
	}
}
