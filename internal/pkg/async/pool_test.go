package async_test

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourly/internal/pkg/async"
)

func TestPoolExecute(t *testing.T) {
	tasks := make([]async.Task[int], 10)
	for i := range tasks {
		n := i
		tasks[i] = async.Task[int]{
			Name: strconv.Itoa(n),
			Execute: func() (int, error) {
				return n * n, nil
			},
		}
	}

	pool := async.NewPool[int](3)
	results := pool.Execute(context.Background(), tasks)

	require.Len(t, results, 10)
	for i := 0; i < 10; i++ {
		res := results[strconv.Itoa(i)]
		require.NoError(t, res.Err)
		assert.Equal(t, i*i, res.Value)
	}
}

func TestPoolExecuteCarriesErrors(t *testing.T) {
	boom := errors.New("boom")
	tasks := []async.Task[string]{
		{Name: "ok", Execute: func() (string, error) { return "fine", nil }},
		{Name: "bad", Execute: func() (string, error) { return "", boom }},
	}

	pool := async.NewPool[string](2)
	results := pool.Execute(context.Background(), tasks)

	require.Len(t, results, 2)
	assert.NoError(t, results["ok"].Err)
	assert.Equal(t, "fine", results["ok"].Value)
	assert.ErrorIs(t, results["bad"].Err, boom)
}

func TestPoolExecuteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	tasks := make([]async.Task[int], 50)
	for i := range tasks {
		tasks[i] = async.Task[int]{
			Name: strconv.Itoa(i),
			Execute: func() (int, error) {
				ran.Add(1)
				return 0, nil
			},
		}
	}

	results := async.NewPool[int](2).Execute(ctx, tasks)

	assert.LessOrEqual(t, len(results), len(tasks))
	assert.LessOrEqual(t, ran.Load(), int32(len(tasks)))
}
