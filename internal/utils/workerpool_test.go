package utils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelForEach(t *testing.T) {
	t.Parallel()

	t.Run("process all items", func(t *testing.T) {
		ctx := context.Background()
		items := []int{1, 2, 3, 4, 5}
		results := make([]int, 5)
		var mu sync.Mutex

		errs := ParallelForEach(ctx, items, 3, func(ctx context.Context, item int) error {
			mu.Lock()
			results[item-1] = item * 2
			mu.Unlock()
			return nil
		})

		assert.Len(t, errs, 5)
		for _, err := range errs {
			assert.NoError(t, err)
		}
		for i, val := range results {
			assert.Equal(t, (i+1)*2, val)
		}
	})

	t.Run("errors are index aligned", func(t *testing.T) {
		ctx := context.Background()
		items := []int{1, 2, 3}

		errs := ParallelForEach(ctx, items, 2, func(ctx context.Context, item int) error {
			if item == 2 {
				return errors.New("error on 2")
			}
			return nil
		})

		assert.Len(t, errs, 3)
		assert.NoError(t, errs[0])
		assert.EqualError(t, errs[1], "error on 2")
		assert.NoError(t, errs[2])
	})

	t.Run("bounded concurrency", func(t *testing.T) {
		ctx := context.Background()
		items := make([]int, 20)
		var current, peak int32

		ParallelForEach(ctx, items, 4, func(ctx context.Context, _ int) error {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			atomic.AddInt32(&current, -1)
			return nil
		})

		assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
	})

	t.Run("zero workers defaults to 1", func(t *testing.T) {
		var count int32
		errs := ParallelForEach(context.Background(), []int{1, 2}, 0, func(ctx context.Context, item int) error {
			atomic.AddInt32(&count, 1)
			return nil
		})

		assert.Len(t, errs, 2)
		assert.Equal(t, int32(2), count)
	})

	t.Run("empty input", func(t *testing.T) {
		errs := ParallelForEach(context.Background(), []string{}, 4, func(ctx context.Context, item string) error {
			return errors.New("never called")
		})
		assert.Empty(t, errs)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		errs := ParallelForEach(ctx, []int{1, 2, 3}, 2, func(ctx context.Context, item int) error {
			return nil
		})
		assert.Len(t, errs, 3)
	})
}

func TestCollectErrors(t *testing.T) {
	t.Parallel()

	a, b := errors.New("a"), errors.New("b")
	assert.Nil(t, CollectErrors([]error{nil, nil}))
	assert.Equal(t, []error{a, b}, CollectErrors([]error{a, nil, b}))
}
