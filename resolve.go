package grove

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// Generic helpers
// ---------------------------------------------------------------------------

// Get is a generic helper that returns the provider registered under T. It
// is the recommended way to retrieve providers:
//
//	store, err := grove.Get[*Store](o)
func Get[T any](o Orchestrator) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()

	inst, err := o.Get(t)
	if err != nil {
		return zero, err
	}

	out, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("cannot convert %T to %s", inst, t)
	}

	return out, nil
}

// MustGet is like [Get] but panics if the provider is not registered.
func MustGet[T any](o Orchestrator) T {
	v, err := Get[T](o)
	if err != nil {
		panic(err)
	}
	return v
}

// Register registers instance under its static type T. Use it to register
// under an interface type without spelling out [As]:
//
//	grove.Register[Store](o, &postgresStore{})
func Register[T any](o Orchestrator, instance T, opts ...RegisterOption) error {
	return o.Register(instance, append([]RegisterOption{As[T]()}, opts...)...)
}

// MustRegister is like [Orchestrator.Register] but panics on error. It suits
// composition roots where a registration after start is a programming error.
func MustRegister(o Orchestrator, instance any, opts ...RegisterOption) {
	if err := o.Register(instance, opts...); err != nil {
		panic(err)
	}
}
