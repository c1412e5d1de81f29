// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"sync"
)

// PauseController is the process-wide coordination primitive described in
// §4.12: pause()/resume()/waitForResume(), plus in-flight bookkeeping so a
// consolidation process can pause the pipeline and then await quiescence
// before it starts reading from storage.
//
// Unlike the registry, a PauseController is not a singleton by construction
// — callers that want one pause domain per process hold a single shared
// instance and pass it to every ingestion controller.
type PauseController struct {
	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}

	inFlight int
	quiesced chan struct{}
}

// NewPauseController creates a controller that starts in the running state.
func NewPauseController() *PauseController {
	return &PauseController{
		resumeCh: make(chan struct{}),
	}
}

// Pause puts the controller into the paused state. Callers already blocked
// in WaitForResume stay blocked until the next Resume.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.paused = true
	p.resumeCh = make(chan struct{})
}

// Resume releases every goroutine currently blocked in WaitForResume.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	close(p.resumeCh)
}

// IsPaused reports the current pause state.
func (p *PauseController) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// WaitForResume blocks until the controller is not paused, or ctx is
// canceled. It is safe to call when not paused — it returns immediately.
func (p *PauseController) WaitForResume(ctx context.Context) error {
	p.mu.Lock()
	if !p.paused {
		p.mu.Unlock()
		return nil
	}
	ch := p.resumeCh
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterInFlight marks the start of an in-flight unit of work (a file
// read+chunk call, a key-generation call) that a quiescence-awaiter must
// wait to see finish.
func (p *PauseController) RegisterInFlight() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight++
}

// CompleteInFlight marks an in-flight unit of work finished, waking any
// goroutine blocked in AwaitQuiescence if this was the last one.
func (p *PauseController) CompleteInFlight() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight > 0 {
		p.inFlight--
	}
	if p.inFlight == 0 && p.quiesced != nil {
		close(p.quiesced)
		p.quiesced = nil
	}
}

// AwaitQuiescence blocks until no in-flight work remains (InFlightCount hits
// zero) or ctx is canceled. Intended to be called after Pause so a
// consolidation process knows when it is safe to read the collection
// without racing an in-progress upsert.
func (p *PauseController) AwaitQuiescence(ctx context.Context) error {
	p.mu.Lock()
	if p.inFlight == 0 {
		p.mu.Unlock()
		return nil
	}
	if p.quiesced == nil {
		p.quiesced = make(chan struct{})
	}
	ch := p.quiesced
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlightCount returns the current number of registered in-flight units,
// for diagnostics.
func (p *PauseController) InFlightCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}
