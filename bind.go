package grove

import (
	"context"
	"reflect"
)

// Bind registers a hook on l that calls method on the provider registered
// under P. The provider is looked up on every fire, so the hook may be bound
// before the provider is registered. A missing provider fails that hook with
// [ErrProviderNotFound].
//
//	grove.Bind(o, heartbeat, (*Reporter).OnBeat)
func Bind[P, A any](o Orchestrator, l *Lifecycle[A], method func(P, context.Context, A) error, opts ...HookOption) *Hook[A] {
	name := reflect.TypeFor[P]().String()
	opts = append([]HookOption{WithHookName(name), WithHookMetadata("provider", name)}, opts...)

	return l.Register(func(ctx context.Context, arg A) error {
		p, err := Get[P](o)
		if err != nil {
			return err
		}
		return method(p, ctx, arg)
	}, opts...)
}
