// Package parallel carries the generic worker pool and fan-in/fan-out
// helpers the pipeline stages dispatch coarse-grained work through.
package parallel

import (
	"runtime"
	"sync"
)

// JobFunc processes one unit of work.
type JobFunc[T any, G any] func(job T) G

// Pool is a fixed-size pool of blocking workers fed through a buffered
// channel. Close drains the queue and joins the workers.
type Pool[T any, G any] struct {
	workers   int
	jobs      chan T
	waitGroup sync.WaitGroup
	jobFunc   JobFunc[T, G]
}

// NewPool sizes the pool; workers <= 0 means one per CPU core.
func NewPool[T any, G any](workers, buffer int, jobFunc JobFunc[T, G]) *Pool[T, G] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool[T, G]{
		workers: workers,
		jobs:    make(chan T, buffer),
		jobFunc: jobFunc,
	}
}

// Submit enqueues one job, blocking when the buffer is full.
func (p *Pool[T, G]) Submit(job T) {
	p.jobs <- job
}

func (p *Pool[T, G]) Start() {
	p.waitGroup.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.waitGroup.Done()
			for job := range p.jobs {
				p.jobFunc(job)
			}
		}()
	}
}

// Close stops accepting jobs and waits for in-flight work.
func (p *Pool[T, G]) Close() {
	close(p.jobs)
	p.waitGroup.Wait()
}

// Fan distributes a job slice over goroutines and funnels results back.
type Fan[T any, G any] struct {
	inputs chan T
}

type ConsumeFunc[G any] func(resChan <-chan G) error

func NewFan[T any, G any](inputsSize int) *Fan[T, G] {
	return &Fan[T, G]{inputs: make(chan T, inputsSize)}
}

// Generate feeds the jobs and closes the input channel.
func (f *Fan[T, G]) Generate(jobs []T) {
	for _, j := range jobs {
		f.inputs <- j
	}
	close(f.inputs)
}

func (f *Fan[T, G]) doJob(jobFunc JobFunc[T, G]) <-chan G {
	out := make(chan G)
	go func() {
		for job := range f.inputs {
			out <- jobFunc(job)
		}
		close(out)
	}()
	return out
}

// FanOut starts n consumers of the shared input channel.
func (f *Fan[T, G]) FanOut(n int, jobFunc JobFunc[T, G]) []<-chan G {
	outs := make([]<-chan G, n)
	for i := 0; i < n; i++ {
		outs[i] = f.doJob(jobFunc)
	}
	return outs
}

// FanIn drains every result channel through consume, stopping on the
// first error.
func (f *Fan[T, G]) FanIn(consume ConsumeFunc[G], cs ...<-chan G) error {
	for _, c := range cs {
		if err := consume(c); err != nil {
			return err
		}
	}
	return nil
}
