package grove

import (
	"context"
	"io"
	"reflect"
)

// Initializer is implemented by providers that must finish some work before
// the application is considered started. Every Init runs concurrently with
// the others; [Orchestrator.Start] returns only after all of them have
// returned. The context is cancelled when a sibling fails or the init
// timeout expires.
type Initializer interface {
	Init(ctx context.Context) error
}

// Starter is implemented by providers that run work after the init barrier
// closes. Start is launched in its own goroutine and may block for the life
// of the process; the context is cancelled by [Orchestrator.Shutdown].
type Starter interface {
	Start(ctx context.Context) error
}

// provider holds the metadata for a single registered singleton.
// Capabilities are probed once at registration.
type provider struct {
	id       reflect.Type
	instance any
	seq      int

	init    Initializer
	starter Starter
	closer  io.Closer
}

func newProvider(id reflect.Type, instance any, seq int) *provider {
	p := &provider{id: id, instance: instance, seq: seq}
	p.init, _ = instance.(Initializer)
	p.starter, _ = instance.(Starter)
	p.closer, _ = instance.(io.Closer)
	return p
}

// ProviderInfo is a read-only description of a registered provider.
type ProviderInfo struct {
	// ID is the provider identity, the string form of its registered type.
	ID string

	// Type is the registered type.
	Type reflect.Type

	HasInit  bool
	HasStart bool
	HasClose bool
}

func (p *provider) info() ProviderInfo {
	return ProviderInfo{
		ID:       p.id.String(),
		Type:     p.id,
		HasInit:  p.init != nil,
		HasStart: p.starter != nil,
		HasClose: p.closer != nil,
	}
}
