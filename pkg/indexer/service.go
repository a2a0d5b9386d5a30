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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/blockstream"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/manifest"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/sandbox"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/store"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// Service hosts one coordinator per registered deployment. Coordinators
// run concurrently and independently; one subgraph failing never stops
// the others.
type Service struct {
	store     *store.Store
	client    chain.Client
	registry  *sandbox.Registry
	fetcher   sandbox.ContentFetcher
	limits    sandbox.Limits
	streamCfg blockstream.Config

	coordinators map[types.DeploymentID]*Coordinator
	order        []types.DeploymentID
}

func NewService(s *store.Store, client chain.Client, registry *sandbox.Registry, fetcher sandbox.ContentFetcher, limits sandbox.Limits, streamCfg blockstream.Config) *Service {
	return &Service{
		store:        s,
		client:       client,
		registry:     registry,
		fetcher:      fetcher,
		limits:       limits,
		streamCfg:    streamCfg,
		coordinators: make(map[types.DeploymentID]*Coordinator),
	}
}

// Register adds a deployment to the service. Manifests are static for the
// life of the run.
func (s *Service) Register(man *manifest.Manifest) error {
	if _, dup := s.coordinators[man.Deployment]; dup {
		return fmt.Errorf("deployment %s already registered", man.Deployment)
	}
	runtime := sandbox.NewRuntime(
		s.registry, s.fetcher, s.store, s.limits,
		log.WithField("deployment", man.Deployment),
	)
	c := NewCoordinator(man, s.store, s.client, runtime, s.streamCfg)
	s.coordinators[man.Deployment] = c
	s.order = append(s.order, man.Deployment)
	return nil
}

// Coordinator returns the coordinator for a deployment, if registered.
func (s *Service) Coordinator(dep types.DeploymentID) (*Coordinator, bool) {
	c, ok := s.coordinators[dep]
	return c, ok
}

// Statuses reports all deployments in registration order.
func (s *Service) Statuses() ([]Status, error) {
	out := make([]Status, 0, len(s.order))
	for _, dep := range s.order {
		st, err := s.coordinators[dep].Status()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Run runs every coordinator until ctx is cancelled. Per-subgraph failures
// are contained: the failed coordinator records its status and stops while
// the rest keep indexing.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, dep := range s.order {
		c := s.coordinators[dep]
		g.Go(func() error {
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithField("deployment", c.Deployment()).Errorf("coordinator halted: %v", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// CaptureSignal cancels the service context on SIGINT/SIGTERM so every
// coordinator stops at its next block boundary.
func CaptureSignal(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Errorf("Signal received (%v), stopping", sig)
		cancel()
	}()
}
