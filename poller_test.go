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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubReader returns the reference of each point as its value and fails
// groups of the units listed in fail.
type stubReader struct {
	mu    sync.Mutex
	calls int
	fail  map[uint8]error
}

func (r *stubReader) ReadPointGroup(group []RegisterPoint) ([]float64, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if err := r.fail[group[0].UnitID]; err != nil {
		return nil, err
	}
	values := make([]float64, len(group))
	for i, p := range group {
		values[i] = float64(p.Reference)
	}
	return values, nil
}

func (r *stubReader) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestPointPoller_PollOnce(t *testing.T) {
	offline := &TimeoutError{Window: time.Second, Endpoint: "10.0.0.2:502"}
	reader := &stubReader{fail: map[uint8]error{2: offline}}
	poller := NewPointPoller(reader, time.Hour)

	err := poller.Load([]RegisterPoint{
		point("t1", 1, 3, 10, TypeINT),
		point("t2", 1, 3, 11, TypeINT),
		point("t3", 1, 4, 10, TypeINT),
		point("t4", 2, 3, 10, TypeINT),
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var (
		failedTags []string
		delivered  []PointReading
	)
	poller.SetOnError(func(tag string, err error) {
		if !errors.Is(err, offline) {
			t.Errorf("unexpected error for %s: %v", tag, err)
		}
		failedTags = append(failedTags, tag)
	})
	poller.SetOnData(func(readings []PointReading) {
		delivered = readings
	})

	readings := poller.PollOnce()
	if reader.callCount() != 3 {
		t.Errorf("expected 3 group reads, got %d", reader.callCount())
	}
	if len(readings) != 3 || len(delivered) != 3 {
		t.Fatalf("expected 3 readings, got %d (delivered %d)", len(readings), len(delivered))
	}
	if readings[0].Tag != "t1" || readings[1].Tag != "t2" || readings[1].Value != 11 || readings[2].Tag != "t3" {
		t.Errorf("unexpected readings %+v", readings)
	}
	if readings[0].Time.IsZero() {
		t.Error("reading has no timestamp")
	}
	if len(failedTags) != 1 || failedTags[0] != "t4" {
		t.Errorf("failed tags = %v", failedTags)
	}
	if poller.Rounds() != 1 {
		t.Errorf("rounds = %d", poller.Rounds())
	}
}

func TestPointPoller_Load(t *testing.T) {
	poller := NewPointPoller(&stubReader{}, time.Second)
	if err := poller.Load([]RegisterPoint{point("a", 1, 3, 0, TypeINT), point("a", 1, 3, 1, TypeINT)}); err == nil {
		t.Error("duplicate tags should be rejected")
	}
	err := poller.Load([]RegisterPoint{point("a", 1, 5, 0, TypeINT)})
	assertKind(t, KindConfig, err)
}

func TestPointPoller_StartStop(t *testing.T) {
	reader := &stubReader{}
	poller := NewPointPoller(reader, 20*time.Millisecond)
	if err := poller.Load([]RegisterPoint{point("t1", 1, 3, 0, TypeREAL)}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var dataReceived int32
	poller.SetOnData(func(readings []PointReading) {
		atomic.AddInt32(&dataReceived, 1)
	})

	poller.Start()
	time.Sleep(110 * time.Millisecond)
	poller.Stop()
	poller.Stop() // second Stop is a no-op

	rounds := poller.Rounds()
	if rounds < 2 {
		t.Errorf("expected at least 2 rounds, got %d", rounds)
	}
	if int32(rounds) != atomic.LoadInt32(&dataReceived) {
		t.Errorf("rounds %d but %d data callbacks", rounds, dataReceived)
	}

	time.Sleep(50 * time.Millisecond)
	if poller.Rounds() != rounds {
		t.Error("poller kept running after Stop")
	}
}

func TestPointPoller_LoadWhileRunning(t *testing.T) {
	reader := &stubReader{}
	poller := NewPointPoller(reader, 10*time.Millisecond)
	if err := poller.Load([]RegisterPoint{point("old", 1, 3, 0, TypeINT)}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var latest atomic.Value
	poller.SetOnData(func(readings []PointReading) {
		latest.Store(readings)
	})
	poller.Start()
	defer poller.Stop()

	time.Sleep(30 * time.Millisecond)
	if err := poller.Load([]RegisterPoint{point("new", 1, 3, 7, TypeINT)}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if readings, ok := latest.Load().([]PointReading); ok && len(readings) == 1 && readings[0].Tag == "new" {
			if readings[0].Value != 7 {
				t.Errorf("value = %v, want 7", readings[0].Value)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("reloaded points were never polled")
}
