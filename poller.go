// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package modbus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PointReading is one decoded sample of a RegisterPoint.
type PointReading struct {
	Tag   string
	Value float64
	Time  time.Time
}

// OnDataFunc receives the readings of one polling round.
type OnDataFunc func([]PointReading)

// OnErrorFunc receives the error of a failed point read.
type OnErrorFunc func(tag string, err error)

// PointReader reads a group of contiguous points; ModbusMaster implements it.
type PointReader interface {
	ReadPointGroup(group []RegisterPoint) ([]float64, error)
}

// PointPoller reads a set of points at a fixed interval. Contiguous points
// are fetched with one request; requests within a round are issued one after
// another, each on its own connection.
type PointPoller struct {
	reader   PointReader
	mu       sync.RWMutex
	groups   [][]RegisterPoint
	interval time.Duration
	onData   atomic.Value // OnDataFunc
	onError  atomic.Value // OnErrorFunc
	rounds   atomic.Uint64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPointPoller creates a poller reading points through reader.
func NewPointPoller(reader PointReader, interval time.Duration) *PointPoller {
	return &PointPoller{
		reader:   reader,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Load validates and stores the points to poll. It may be called while the
// poller runs; the new set takes effect from the next round.
func (p *PointPoller) Load(points []RegisterPoint) error {
	tags := make(map[string]bool, len(points))
	for _, pt := range points {
		if tags[pt.Tag] {
			return fmt.Errorf("duplicate tag: %s", pt.Tag)
		}
		tags[pt.Tag] = true
		if err := pt.Validate(); err != nil {
			return err
		}
	}
	groups := GroupPoints(points)
	p.mu.Lock()
	p.groups = groups
	p.mu.Unlock()
	return nil
}

// SetOnData sets the callback for data events
func (p *PointPoller) SetOnData(fn OnDataFunc) {
	p.onData.Store(fn)
}

// SetOnError sets the callback for error events
func (p *PointPoller) SetOnError(fn OnErrorFunc) {
	p.onError.Store(fn)
}

// Rounds returns the number of completed polling rounds.
func (p *PointPoller) Rounds() uint64 {
	return p.rounds.Load()
}

// PollOnce reads every point once and dispatches the results. Points of a
// failed group are reported to the error callback and left out.
func (p *PointPoller) PollOnce() []PointReading {
	p.mu.RLock()
	groups := p.groups
	p.mu.RUnlock()

	var readings []PointReading
	for _, group := range groups {
		values, err := p.reader.ReadPointGroup(group)
		if err != nil {
			if cb, ok := p.onError.Load().(OnErrorFunc); ok && cb != nil {
				for _, pt := range group {
					cb(pt.Tag, err)
				}
			}
			continue
		}
		now := time.Now()
		for i, pt := range group {
			readings = append(readings, PointReading{Tag: pt.Tag, Value: values[i], Time: now})
		}
	}
	p.rounds.Add(1)
	if cb, ok := p.onData.Load().(OnDataFunc); ok && cb != nil {
		cb(readings)
	}
	return readings
}

// Start runs a first round immediately, then one per interval until Stop.
func (p *PointPoller) Start() {
	p.wg.Add(1)
	go p.poll()
}

func (p *PointPoller) poll() {
	defer p.wg.Done()
	p.PollOnce()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// Stop ends polling and waits for the current round to finish.
func (p *PointPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}
