package idle

import "weak"

// Observer receives idle and active notifications for one timeout tier.
// Observers are compared by identity, so implementations should be pointer
// types.
type Observer interface {
	Idle()
	Active()
}

// Ref is a handle to an Observer that may have gone away. Observer returns
// nil once the observer is no longer live.
type Ref interface {
	Observer() Observer
}

type weakRef[T any, P interface {
	*T
	Observer
}] struct {
	ptr weak.Pointer[T]
}

func (r weakRef[T, P]) Observer() Observer {
	v := r.ptr.Value()
	if v == nil {
		return nil
	}
	return P(v)
}

// Weak returns a Ref that does not keep p alive. Once p is garbage
// collected its registrations become inert and are pruned.
func Weak[T any, P interface {
	*T
	Observer
}](p P) Ref {
	return weakRef[T, P]{ptr: weak.Make((*T)(p))}
}

type strongRef struct {
	observer Observer
}

func (r strongRef) Observer() Observer {
	return r.observer
}

// Strong returns a Ref that keeps o alive until it is unregistered.
func Strong(o Observer) Ref {
	return strongRef{observer: o}
}

// ObserverFuncs adapts a pair of functions to Observer. Either may be nil.
type ObserverFuncs struct {
	OnIdle   func()
	OnActive func()
}

func (f *ObserverFuncs) Idle() {
	if f.OnIdle != nil {
		f.OnIdle()
	}
}

func (f *ObserverFuncs) Active() {
	if f.OnActive != nil {
		f.OnActive()
	}
}
