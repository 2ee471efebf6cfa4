package unitofwork

import "log/slog"

// Option configures a UnitOfWork.
type Option func(*UnitOfWork)

// WithConfig replaces the default policies.
func WithConfig(cfg Config) Option {
	return func(u *UnitOfWork) {
		u.cfg = cfg
	}
}

// WithLogger sets the logger used for commit diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(u *UnitOfWork) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithMetrics records commits in m.
func WithMetrics(m *Metrics) Option {
	return func(u *UnitOfWork) {
		u.metrics = m
	}
}
