// Package async provides a small bounded worker pool for fanning out
// independent computations that each produce one value.
package async

import (
	"context"
	"sync"
)

// Task is one unit of work producing a value of type T.
type Task[T any] struct {
	Name    string
	Execute func() (T, error)
}

// Result pairs a task's value with the error it produced.
type Result[T any] struct {
	Name  string
	Value T
	Err   error
}

// Pool runs tasks over a fixed number of workers.
type Pool[T any] struct {
	workers int
}

// NewPool creates a pool with the given worker count, minimum 1.
func NewPool[T any](workers int) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	return &Pool[T]{workers: workers}
}

// Execute runs all tasks and returns their results keyed by task name.
// Cancelling the context abandons unstarted tasks; results gathered so
// far are returned.
func (p *Pool[T]) Execute(ctx context.Context, tasks []Task[T]) map[string]Result[T] {
	queue := make(chan Task[T], len(tasks))
	for _, task := range tasks {
		queue <- task
	}
	close(queue)

	out := make(chan Result[T], len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				if ctx.Err() != nil {
					return
				}
				value, err := task.Execute()
				out <- Result[T]{Name: task.Name, Value: value, Err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make(map[string]Result[T], len(tasks))
	for {
		select {
		case res, ok := <-out:
			if !ok {
				return results
			}
			results[res.Name] = res
		case <-ctx.Done():
			return results
		}
	}
}
