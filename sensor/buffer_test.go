// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor_test

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/visisec/edge-sdk/sensor"
)

func TestRollingBufferRetainsLastCapacity(t *testing.T) {
	for _, capacity := range []int{1, 3, 7, 64} {
		b := sensor.NewRollingBuffer[int](capacity)
		n := capacity*3 + 2
		for i := range n {
			b.Push(i)
		}

		require.Equal(t, capacity, b.Len())

		want := make([]int, 0, capacity)
		for i := n - capacity; i < n; i++ {
			want = append(want, i)
		}
		require.Equal(t, want, b.All())
	}
}

func TestRollingBufferDefaultCapacity(t *testing.T) {
	b := sensor.NewRollingBuffer[int](0)
	require.Equal(t, sensor.DefaultCapacity, b.Cap())
}

func TestRollingBufferLatest(t *testing.T) {
	b := sensor.NewRollingBuffer[int](5)
	require.Empty(t, b.Latest(3))

	for i := range 7 {
		b.Push(i)
	}

	require.Equal(t, []int{4, 5, 6}, b.Latest(3))
	require.Equal(t, []int{2, 3, 4, 5, 6}, b.Latest(50))
	require.Empty(t, b.Latest(0))
}

func TestRollingBufferLatestIsCopy(t *testing.T) {
	b := sensor.NewRollingBuffer[int](3)
	b.Push(1)
	b.Push(2)

	got := b.Latest(2)
	got[0] = 100
	b.Push(3)
	b.Push(4)

	require.Equal(t, []int{100, 2}, got)
	require.Equal(t, []int{2, 3, 4}, b.All())
}

func TestRollingBufferClear(t *testing.T) {
	b := sensor.NewRollingBuffer[int](4)
	for i := range 6 {
		b.Push(i)
	}

	require.Equal(t, 4, b.Clear())
	require.Zero(t, b.Len())
	require.Zero(t, b.Clear())

	b.Push(9)
	require.Equal(t, []int{9}, b.All())
	require.Equal(t, []int{9}, slices.Collect(b.Items()))
}

func TestRollingBufferConcurrent(t *testing.T) {
	b := sensor.NewRollingBuffer[int](100)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				b.Push(w*1000 + i)
				_ = b.Latest(10)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 100, b.Len())
}
