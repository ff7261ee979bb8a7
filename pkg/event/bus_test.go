package event

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEmitReturnsListenerPresence(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	if bus.Emit("ghost") {
		t.Error("Emit with no listeners returned true")
	}

	bus.On("ping", func(args ...any) {})
	if !bus.Emit("ping") {
		t.Error("Emit with a listener returned false")
	}
}

func TestEmitOrderAndArgs(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	var order []int
	bus.On("e", func(args ...any) { order = append(order, 1) })
	bus.On("e", func(args ...any) { order = append(order, 2) })
	bus.On("e", func(args ...any) {
		order = append(order, 3)
		if args[0] != "payload" || args[1] != 42 {
			t.Errorf("args = %v", args)
		}
	})

	bus.Emit("e", "payload", 42)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("handler order = %v, want [1 2 3]", order)
	}
}

func TestOnceAutoUnsubscribes(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	count := 0
	bus.Once("e", func(args ...any) { count++ })

	bus.Emit("e")
	bus.Emit("e")
	if count != 1 {
		t.Errorf("once handler ran %d times, want 1", count)
	}
	if bus.ListenerCount("e") != 0 {
		t.Error("once handler still registered after delivery")
	}
}

func TestPanicIsolation(t *testing.T) {
	var caught []any
	bus := NewBus(Options{OnError: func(event string, r any) { caught = append(caught, r) }})
	defer bus.Close()

	ran := false
	bus.On("e", func(args ...any) { panic("boom") })
	bus.On("e", func(args ...any) { ran = true })

	bus.Emit("e")
	if !ran {
		t.Error("second handler did not run after first panicked")
	}
	if len(caught) != 1 || caught[0] != "boom" {
		t.Errorf("error handler got %v, want [boom]", caught)
	}
}

func TestOff(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	count := 0
	id, _ := bus.On("e", func(args ...any) { count++ })

	if !bus.Off("e", id) {
		t.Fatal("Off returned false for live registration")
	}
	if bus.Off("e", id) {
		t.Error("Off returned true for removed registration")
	}
	bus.Emit("e")
	if count != 0 {
		t.Error("removed handler still ran")
	}
}

func TestRemoveAllListeners(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	bus.On("a", func(args ...any) {})
	bus.On("b", func(args ...any) {})

	bus.RemoveAllListeners("a")
	if bus.ListenerCount("a") != 0 || bus.ListenerCount("b") != 1 {
		t.Error("targeted removal wrong")
	}

	bus.RemoveAllListeners()
	if bus.ListenerCount("b") != 0 {
		t.Error("full removal left listeners")
	}
}

func TestMaxListenersHardFailure(t *testing.T) {
	bus := NewBus(Options{MaxListeners: 2})
	defer bus.Close()

	bus.On("e", func(args ...any) {})
	bus.On("e", func(args ...any) {})
	if _, err := bus.On("e", func(args ...any) {}); !errors.Is(err, ErrTooManyListeners) {
		t.Errorf("third registration: got %v, want ErrTooManyListeners", err)
	}
}

func TestEmitAsyncPreservesOrder(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	bus.On("first", func(args ...any) {
		mu.Lock()
		got = append(got, "first")
		mu.Unlock()
	})
	bus.On("second", func(args ...any) {
		mu.Lock()
		got = append(got, "second")
		mu.Unlock()
		close(done)
	})

	bus.EmitAsync("first")
	bus.EmitAsync("second")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async dispatch timed out")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("async order = %v, want [first second]", got)
	}
}

func TestWaitForDeliversArgs(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	result := make(chan []any, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		args, err := bus.WaitFor("e", 2*time.Second)
		if err != nil {
			t.Errorf("WaitFor: %v", err)
		}
		result <- args
	}()

	<-ready
	// Give the waiter a moment to register.
	for bus.ListenerCount("e") == 0 {
		time.Sleep(time.Millisecond)
	}
	bus.Emit("e", "hello", 7)

	args := <-result
	if len(args) != 2 || args[0] != "hello" || args[1] != 7 {
		t.Errorf("WaitFor args = %v", args)
	}
}

func TestWaitForTimeout(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	_, err := bus.WaitFor("never", 20*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("got %v, want ErrWaitTimeout", err)
	}
	if bus.ListenerCount("never") != 0 {
		t.Error("timed-out waiter left a registration behind")
	}
}

func TestFilterView(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	var got []any
	view := bus.Filter("e", func(args []any) bool {
		n, ok := args[0].(int)
		return ok && n > 10
	})
	view.On(func(args ...any) { got = append(got, args[0]) })

	bus.Emit("e", 5)
	bus.Emit("e", 50)
	bus.Emit("e", 3)

	if len(got) != 1 || got[0] != 50 {
		t.Errorf("filtered deliveries = %v, want [50]", got)
	}
}

func TestFilterOnceSkipsNonMatching(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	count := 0
	view := bus.Filter("e", func(args []any) bool { return args[0] == "yes" })
	view.Once(func(args ...any) { count++ })

	bus.Emit("e", "no") // must not consume the once
	bus.Emit("e", "yes")
	bus.Emit("e", "yes")
	if count != 1 {
		t.Errorf("filtered once ran %d times, want 1", count)
	}
}

func TestNamespaceRewritesBothDirections(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	ns := bus.CreateNamespace("graph")

	var viaParent, viaNS int
	bus.On("graph:changed", func(args ...any) { viaParent++ })
	ns.On("changed", func(args ...any) { viaNS++ })

	ns.Emit("changed")          // local name, both see it
	bus.Emit("graph:changed")   // qualified name, both see it
	bus.Emit("changed")         // unqualified on parent, neither namespaced listener sees it

	if viaParent != 2 {
		t.Errorf("parent listener ran %d times, want 2", viaParent)
	}
	if viaNS != 2 {
		t.Errorf("namespaced listener ran %d times, want 2", viaNS)
	}
}

func TestCloseStopsAsync(t *testing.T) {
	bus := NewBus(Options{})

	delivered := make(chan struct{}, 1)
	bus.On("e", func(args ...any) { delivered <- struct{}{} })
	bus.EmitAsync("e")
	bus.Close()

	select {
	case <-delivered:
	default:
		t.Error("queued async delivery lost on Close")
	}

	if _, err := bus.On("late", func(args ...any) {}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("registration after close: got %v, want ErrBusClosed", err)
	}
}
