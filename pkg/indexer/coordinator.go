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

package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/blockstream"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/manifest"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/poi"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/prom"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/sandbox"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/store"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/triggers"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// State is the coordinator's position in its per-block cycle.
type State uint32

const (
	StateIdle State = iota
	StateProcessing
	StateReverting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateReverting:
		return "reverting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// commitAttempts bounds retries of an atomic commit before the subgraph
// halts in its known-safe prior state.
const commitAttempts = 3

// Coordinator drives indexing for one deployment: it consumes the block
// stream, matches triggers, runs mappings, and commits each block's
// mutations, proof-of-indexing digest and block pointer atomically. It is
// the deployment's single writer; everything else reads committed state.
type Coordinator struct {
	dep     types.DeploymentID
	man     *manifest.Manifest
	store   *store.Store
	client  chain.Client
	runtime *sandbox.Runtime
	cfg     blockstream.Config
	logger  *log.Entry

	state atomic.Uint32
}

func NewCoordinator(man *manifest.Manifest, s *store.Store, client chain.Client, runtime *sandbox.Runtime, cfg blockstream.Config) *Coordinator {
	return &Coordinator{
		dep:     man.Deployment,
		man:     man,
		store:   s,
		client:  client,
		runtime: runtime,
		cfg:     cfg,
		logger:  log.WithField("deployment", man.Deployment),
	}
}

func (c *Coordinator) Deployment() types.DeploymentID { return c.dep }

func (c *Coordinator) setState(s State) { c.state.Store(uint32(s)) }

// Status is the externally visible snapshot of a deployment's progress.
type Status struct {
	Deployment types.DeploymentID
	Block      types.BlockPtr
	HasBlock   bool
	Health     store.Health
	LastError  string
	State      State
}

func (c *Coordinator) Status() (Status, error) {
	ptr, has, err := c.store.BlockPtr(c.dep)
	if err != nil {
		return Status{}, err
	}
	rec, err := c.store.Status(c.dep)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Deployment: c.dep,
		Block:      ptr,
		HasBlock:   has,
		Health:     rec.Health,
		LastError:  rec.LastError,
		State:      State(c.state.Load()),
	}, nil
}

// Run indexes until the context is cancelled or the subgraph fails. A
// subgraph that failed in an earlier run stays halted; it keeps serving
// queries at its last committed block but will not advance without manual
// intervention.
func (c *Coordinator) Run(ctx context.Context) error {
	status, err := c.store.Status(c.dep)
	if err != nil {
		return err
	}
	if status.Health == store.HealthFailed {
		c.setState(StateFailed)
		return fmt.Errorf("deployment %s previously failed: %s", c.dep, status.LastError)
	}

	head, hasHead, err := c.store.BlockPtr(c.dep)
	if err != nil {
		return err
	}
	var sealed []byte
	if hasHead {
		sealed, _, err = c.store.POI(c.dep, head.Number)
		if err != nil {
			return err
		}
	}
	acc := poi.NewAccumulator(c.dep, sealed)

	cfg := c.cfg
	cfg.StartBlock = c.man.EarliestStartBlock()
	stream := blockstream.New(c.client, head, cfg, c.logger)
	if hasHead {
		ancestry, err := c.store.RecentAncestry(c.dep, int(cfg.MaxReorgDepth)+1)
		if err != nil {
			return err
		}
		stream.SeedAncestry(ancestry)
	}

	c.logger.WithFields(log.Fields{"head": head.Number, "resumed": hasHead}).Info("indexing started")
	for {
		// pause/stop lands between blocks only
		if err := ctx.Err(); err != nil {
			c.logger.Info("indexing stopped")
			return nil
		}
		ev, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("indexing stopped")
				return nil
			}
			return c.fail(err)
		}
		switch ev.Kind {
		case blockstream.KindAdvance:
			if err := c.processBlock(ctx, acc, ev.Block); err != nil {
				return c.fail(err)
			}
		case blockstream.KindRevert:
			if err := c.revertTo(acc, ev.To); err != nil {
				return c.fail(err)
			}
		}
		c.setState(StateIdle)
	}
}

// processBlock runs one Advance: match triggers, invoke each in order,
// seal the digest and commit everything atomically.
func (c *Coordinator) processBlock(ctx context.Context, acc *poi.Accumulator, block *chain.Block) error {
	c.setState(StateProcessing)
	started := time.Now()

	trigs := triggers.Match(block, c.man.DataSources)
	txn := store.NewTransaction(c.store, c.dep, &c.man.Schema, block.Ptr)

	for _, trig := range trigs {
		var cp *store.Checkpoint
		if trig.DataSource.TolerateFailures {
			cp = txn.Checkpoint()
		}
		err := c.runtime.Invoke(ctx, trig, txn.Handle(trig.DataSource.CausalityRegion))
		if err != nil {
			var me *types.MappingError
			if errors.As(err, &me) && trig.DataSource.TolerateFailures {
				// discard this invocation's effects only
				txn.Rollback(cp)
				prom.IncTriggersDiscarded()
				c.logger.WithField("trigger", trig.String()).Warnf("discarding failed invocation: %v", err)
				continue
			}
			acc.Discard()
			return err
		}
		prom.IncTriggersProcessed()
	}

	for _, mod := range txn.Mods() {
		acc.Update(mod)
	}
	digest := acc.Finalize(block.Ptr)

	if err := c.commitWithRetry(ctx, block.Ptr, txn.Mods(), digest); err != nil {
		return err
	}
	prom.IncBlocksProcessed()
	prom.ObserveCommit(time.Since(started))
	c.logger.WithFields(log.Fields{
		"block":    block.Ptr.Number,
		"triggers": len(trigs),
		"elapsed":  time.Since(started),
	}).Info("block processed")
	return nil
}

// commitWithRetry retries the atomic commit a bounded number of times.
// A commit either fully applies or not at all, so re-running it after a
// substrate hiccup cannot double-apply.
func (c *Coordinator) commitWithRetry(ctx context.Context, block types.BlockPtr, mods []store.EntityMod, digest []byte) error {
	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		err = c.store.CommitBlock(c.dep, block, mods, digest)
		if err == nil {
			return nil
		}
		c.logger.Warnf("commit attempt %d/%d failed: %v", attempt, commitAttempts, err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return err
}

// revertTo handles one Revert event: store and accumulator roll back to
// the common ancestor together.
func (c *Coordinator) revertTo(acc *poi.Accumulator, to types.BlockPtr) error {
	c.setState(StateReverting)
	prom.IncReorgsHandled()

	if err := c.store.RevertTo(c.dep, to); err != nil {
		return err
	}
	sealed, _, err := c.store.POI(c.dep, to.Number)
	if err != nil {
		return err
	}
	acc.RevertTo(sealed)
	c.logger.WithField("block", to.Number).Info("reverted to common ancestor")
	return nil
}

// fail marks the deployment failed and halts it. The store stays at the
// last committed block, so queries keep working against consistent state.
func (c *Coordinator) fail(cause error) error {
	c.setState(StateFailed)
	prom.IncSubgraphsFailed()
	c.logger.Errorf("subgraph failed: %v", cause)
	if err := c.store.SetStatus(c.dep, store.StatusRecord{
		Health:    store.HealthFailed,
		LastError: cause.Error(),
	}); err != nil {
		c.logger.Errorf("recording failure: %v", err)
	}
	return cause
}
