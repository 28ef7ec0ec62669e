package log

import "runtime/debug"

// SafeGo runs fn in a new goroutine with panic recovery.
// A recovered panic is logged with the goroutine's name and stack trace
// instead of crashing the process. Use for every fire-and-forget goroutine
// the engine spawns.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Error(CatPanic, "goroutine panic recovered",
					"name", name,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
