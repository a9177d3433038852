package eventloop

// Task is a unit of work submitted to a Loop for execution on the loop's
// own goroutine. A zero Task (nil Runnable) is a no-op.
type Task struct {
	Runnable func()
}
