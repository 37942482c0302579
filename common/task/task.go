// Package task runs blocking functions side by side.
package task

import (
	"context"
	"errors"

	E "github.com/sagernet/sing-reactor/common/exceptions"
)

// Run starts every task with a shared context that is cancelled as soon as
// one of them returns. It waits for all tasks and returns their errors,
// leaving out those caused by the context ending.
func Run(ctx context.Context, tasks ...func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := make(chan error, len(tasks))
	for _, task := range tasks {
		task := task
		go func() {
			results <- task(ctx)
		}()
	}
	var errs []error
	for range tasks {
		err := <-results
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ctx.Err()) {
			errs = append(errs, err)
		}
	}
	return E.Errors(errs...)
}
