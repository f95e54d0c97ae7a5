package health

import "context"

// Pinger checks availability of one component, typically an index backend.
type Pinger interface {
	Ping(ctx context.Context) error
}
