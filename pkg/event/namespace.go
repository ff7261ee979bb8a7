package event

import (
	"strings"
	"time"
)

// Predicate decides whether a filtered view passes an emission through.
type Predicate func(args []any) bool

// View is a restricted window onto one event: registrations only fire for
// emissions the predicate accepts. Obtained from Bus.Filter.
type View struct {
	bus   *Bus
	event string
	pred  Predicate
}

// Filter returns a view of event restricted to emissions matching pred.
func (b *Bus) Filter(event string, pred Predicate) *View {
	if pred == nil {
		pred = func([]any) bool { return true }
	}
	return &View{bus: b, event: event, pred: pred}
}

// On registers a handler invoked only for matching emissions.
func (v *View) On(fn Handler) (ListenerID, error) {
	return v.bus.On(v.event, func(args ...any) {
		if v.pred(args) {
			fn(args...)
		}
	})
}

// Once registers a handler that fires for the first matching emission only.
// Non-matching emissions do not consume the registration.
func (v *View) Once(fn Handler) (ListenerID, error) {
	var id ListenerID
	var err error
	id, err = v.bus.On(v.event, func(args ...any) {
		if !v.pred(args) {
			return
		}
		v.bus.Off(v.event, id)
		fn(args...)
	})
	return id, err
}

// Off removes a registration made through this view.
func (v *View) Off(id ListenerID) bool {
	return v.bus.Off(v.event, id)
}

// WaitFor blocks until the next matching emission, or times out.
func (v *View) WaitFor(timeout time.Duration) ([]any, error) {
	ch := make(chan []any, 1)
	id, err := v.Once(func(args ...any) {
		ch <- args
	})
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return <-ch, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case args := <-ch:
		return args, nil
	case <-timer.C:
		v.bus.Off(v.event, id)
		select {
		case args := <-ch:
			return args, nil
		default:
		}
		return nil, ErrWaitTimeout
	}
}

// Namespace is a sub-bus that rewrites event names local <-> prefix:local
// transparently in both directions. All registrations and emissions flow
// through the parent bus.
type Namespace struct {
	bus    *Bus
	prefix string
}

// CreateNamespace returns a sub-bus under prefix. A trailing colon in the
// prefix is tolerated.
func (b *Bus) CreateNamespace(prefix string) *Namespace {
	return &Namespace{bus: b, prefix: strings.TrimSuffix(prefix, ":")}
}

func (n *Namespace) qualify(event string) string {
	return n.prefix + ":" + event
}

// On registers a handler for the namespaced event.
func (n *Namespace) On(event string, fn Handler) (ListenerID, error) {
	return n.bus.On(n.qualify(event), fn)
}

// Once registers a one-shot handler for the namespaced event.
func (n *Namespace) Once(event string, fn Handler) (ListenerID, error) {
	return n.bus.Once(n.qualify(event), fn)
}

// Off removes a namespaced registration.
func (n *Namespace) Off(event string, id ListenerID) bool {
	return n.bus.Off(n.qualify(event), id)
}

// Emit dispatches the namespaced event synchronously.
func (n *Namespace) Emit(event string, args ...any) bool {
	return n.bus.Emit(n.qualify(event), args...)
}

// EmitAsync enqueues the namespaced event for async dispatch.
func (n *Namespace) EmitAsync(event string, args ...any) bool {
	return n.bus.EmitAsync(n.qualify(event), args...)
}

// WaitFor blocks for the next namespaced emission.
func (n *Namespace) WaitFor(event string, timeout time.Duration) ([]any, error) {
	return n.bus.WaitFor(n.qualify(event), timeout)
}
