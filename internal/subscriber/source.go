package subscriber

import "context"

// Source is a transport delivering Buildbot messages to an Ingester.
type Source interface {
	Name() string
	// Start connects and begins delivering. It returns once the
	// subscription is established; delivery continues in the background.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
