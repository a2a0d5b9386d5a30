// Copyright © 2023 Vulcanize, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package sandbox runs mapping handlers under resource limits behind a
// narrow host API. Handlers are registered Go functions; they may only
// observe the world through the Host they are handed, so a handler that
// stays inside the API is deterministic by construction. Traps — panics,
// explicit aborts, exhausted budgets, timeouts — surface as MappingError
// and never take down the caller.
package sandbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/triggers"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// Handler is one mapping entry point. A returned error is a trap.
type Handler func(h *Host, t *triggers.Trigger) error

// Limits bounds one invocation. Zero fields mean unlimited, which only
// tests should use.
type Limits struct {
	MaxSteps uint64
	MaxBytes uint64
	Timeout  time.Duration
}

// DefaultLimits matches the budget a well-behaved handler never notices.
var DefaultLimits = Limits{
	MaxSteps: 1_000_000,
	MaxBytes: 64 << 20,
	Timeout:  5 * time.Minute,
}

// Registry maps handler names (as referenced by manifests) to code.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Default is the registry binaries populate from their mapping packages'
// init functions; the index command runs against it.
var Default = NewRegistry()

// Register adds a handler to the default registry.
func Register(name string, h Handler) {
	Default.Register(name, h)
}

// Runtime invokes handlers for one deployment. Invocations run to
// completion, trap or timeout; they never suspend mid-trigger.
type Runtime struct {
	registry *Registry
	fetcher  ContentFetcher
	aux      AuxCache
	limits   Limits
	logger   *log.Entry
}

func NewRuntime(registry *Registry, fetcher ContentFetcher, aux AuxCache, limits Limits, logger *log.Entry) *Runtime {
	return &Runtime{
		registry: registry,
		fetcher:  fetcher,
		aux:      aux,
		limits:   limits,
		logger:   logger,
	}
}

// Invoke runs the trigger's handler against the given causality region
// view. The handler executes on its own goroutine so heavy computation
// cannot starve the coordinator's scheduling; on timeout the result is
// abandoned and the caller sees a MappingError, after which the block is
// either fatal or the invocation's staged writes get rolled back by the
// caller.
func (r *Runtime) Invoke(ctx context.Context, t *triggers.Trigger, entities EntityStore) error {
	handler, ok := r.registry.handlers[t.Handler]
	if !ok {
		return &types.MappingError{
			Handler: t.Handler,
			Kind:    types.MappingTrap,
			Detail:  "handler not registered",
		}
	}

	host := &Host{
		ctx:      ctx,
		entities: entities,
		fetcher:  r.fetcher,
		aux:      r.aux,
		limits:   r.limits,
		logger: r.logger.WithFields(log.Fields{
			"handler": t.Handler,
			"block":   t.Block.Ptr.Number,
		}),
		block: t.Block,
		trig:  triggerData{log: t.Log, call: t.Call},
	}

	done := make(chan error, 1)
	go func() {
		done <- r.run(handler, host, t)
	}()

	if r.limits.Timeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(r.limits.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		// the handler goroutine is abandoned; bar it from the host first so
		// it cannot stage writes into a transaction we are about to roll back
		host.cancel()
		return &types.MappingError{
			Handler: t.Handler,
			Kind:    types.MappingTimeout,
			Detail:  fmt.Sprintf("exceeded %s wall clock", r.limits.Timeout),
		}
	}
}

// run executes the handler, converting traps to typed errors.
func (r *Runtime) run(handler Handler, host *Host, t *triggers.Trigger) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		switch p := rec.(type) {
		case abortPanic:
			err = &types.MappingError{Handler: t.Handler, Kind: types.MappingAbort, Detail: p.msg}
		case limitPanic:
			err = &types.MappingError{Handler: t.Handler, Kind: types.MappingResourceLimit, Detail: p.what}
		case cancelPanic:
			// nobody is waiting on this result; the runtime already reported
			// the timeout
			err = &types.MappingError{Handler: t.Handler, Kind: types.MappingTimeout, Detail: "invocation cancelled"}
		case faultPanic:
			// store/schema faults keep their own type; the coordinator
			// treats them as block-fatal regardless of trigger policy
			err = p.err
		default:
			err = &types.MappingError{Handler: t.Handler, Kind: types.MappingTrap, Detail: fmt.Sprint(p)}
		}
	}()

	if err := handler(host, t); err != nil {
		return &types.MappingError{Handler: t.Handler, Kind: types.MappingTrap, Detail: err.Error()}
	}
	return nil
}
