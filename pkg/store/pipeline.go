// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// obsTask carries one observation write to the worker pool.
type obsTask struct {
	table    string
	sighting *Sighting
}

// pipeline decouples fetching from observation writes. Producers block
// when the queue is full, which backpressures the fetch loop. Each
// worker holds its own database connection.
type pipeline struct {
	log     *zap.Logger
	store   *SQL
	tasks   chan *obsTask
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

func newPipeline(log *zap.Logger, store *SQL, workers, queueSize int) *pipeline {
	return &pipeline{
		log:     log,
		store:   store,
		tasks:   make(chan *obsTask, queueSize),
		workers: workers,
	}
}

func (p *pipeline) start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *pipeline) submit(task *obsTask) {
	mon.Counter("pipeline_submitted").Inc(1)
	p.tasks <- task
}

// worker consumes tasks until it receives the nil shutdown sentinel.
// A failed write is logged and counted but never stops the worker.
func (p *pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With(zap.Int("worker", id))

	var ex execer = p.store.db
	conn, err := p.store.db.Conn(ctx)
	if err != nil {
		log.Warn("dedicated connection unavailable, using shared pool", zap.Error(err))
	} else {
		ex = conn
		defer func() {
			if err := conn.Close(); err != nil {
				log.Warn("connection close failed", zap.Error(err))
			}
		}()
	}

	for task := range p.tasks {
		if task == nil {
			return
		}
		if err := p.store.writeObservation(ctx, ex, task); err != nil {
			mon.Counter("pipeline_errors").Inc(1)
			log.Error("observation store failed",
				zap.String("id", task.sighting.ID),
				zap.Error(err))
		}
	}
}

// close waits for the queue to drain, hands one shutdown sentinel to
// every worker and waits for them to exit. Sentinels are queued behind
// any remaining tasks, so every submitted task is persisted before the
// workers stop.
func (p *pipeline) close() error {
	p.once.Do(func() {
		for len(p.tasks) > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		for i := 0; i < p.workers; i++ {
			p.tasks <- nil
		}
		p.wg.Wait()
	})
	return nil
}
