package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool(t *testing.T) {
	var sum atomic.Int64
	pool := NewPool[int, struct{}](4, 16, func(job int) struct{} {
		sum.Add(int64(job))
		return struct{}{}
	})
	pool.Start()
	total := int64(0)
	for i := 1; i <= 100; i++ {
		pool.Submit(i)
		total += int64(i)
	}
	pool.Close()
	assert.Equal(t, total, sum.Load())
}

func TestFan(t *testing.T) {
	jobs := make([]int, 50)
	for i := range jobs {
		jobs[i] = i
	}
	fan := NewFan[int, int](len(jobs))
	outs := fan.FanOut(4, func(job int) int { return job * 2 })
	go fan.Generate(jobs)

	var got []int
	err := fan.FanIn(func(resChan <-chan int) error {
		for v := range resChan {
			got = append(got, v)
		}
		return nil
	}, outs...)
	assert.NoError(t, err)
	assert.Len(t, got, len(jobs))

	sum := 0
	for _, v := range got {
		sum += v
	}
	assert.Equal(t, 49*50, sum)
}
