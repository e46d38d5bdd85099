package tasks

import "fmt"

// TaskNotFoundError reports a trigger or status request for a task name
// that was never registered.
type TaskNotFoundError struct {
	Name string
}

func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %q not registered", e.Name)
}
