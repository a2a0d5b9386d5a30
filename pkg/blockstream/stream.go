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

// Package blockstream turns a chain client's head feed into an ordered
// stream of Advance and Revert events. When the observed chain diverges
// from the blocks already emitted, the stream walks the new branch back to
// a common ancestor, emits one Revert to that ancestor, then replays the
// new canonical blocks forward.
package blockstream

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/chain"
	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// EventKind distinguishes stream events.
type EventKind uint8

const (
	KindAdvance EventKind = iota
	KindRevert
)

// Event is one step of the stream: a new canonical block, or an
// instruction to rewind to a common ancestor before older blocks replay.
type Event struct {
	Kind  EventKind
	Block *chain.Block   // set for Advance
	To    types.BlockPtr // set for Revert
}

// Config bounds the stream's patience.
type Config struct {
	// StartBlock is the first block to emit when no head is resumed.
	StartBlock uint64
	// MaxReorgDepth bounds the common-ancestor search; exceeding it is
	// fatal.
	MaxReorgDepth uint64
	// PollInterval is how often the head number is re-checked while
	// waiting for the chain to grow.
	PollInterval time.Duration
	// MaxRetries bounds retry attempts for one transient client failure.
	MaxRetries uint64
	// RetryBase is the initial backoff delay.
	RetryBase time.Duration
}

// DefaultConfig is suitable for a mainnet-paced chain.
var DefaultConfig = Config{
	MaxReorgDepth: 128,
	PollInterval:  2 * time.Second,
	MaxRetries:    8,
	RetryBase:     250 * time.Millisecond,
}

// Stream produces events for one subgraph. Not safe for concurrent use;
// each coordinator owns its stream.
type Stream struct {
	client chain.Client
	cfg    Config
	logger *log.Entry

	head    types.BlockPtr          // last pointer emitted
	hasHead bool
	recent  map[uint64]common.Hash  // emitted ancestry, pruned to MaxReorgDepth
	pending []*chain.Block          // replay queue after a revert
}

// New resumes a stream from the given head pointer; a zero pointer starts
// fresh at cfg.StartBlock.
func New(client chain.Client, head types.BlockPtr, cfg Config, logger *log.Entry) *Stream {
	s := &Stream{
		client: client,
		cfg:    cfg,
		logger: logger,
		recent: make(map[uint64]common.Hash),
	}
	if !head.IsZero() {
		s.head = head
		s.hasHead = true
		s.recent[head.Number] = head.Hash
	}
	return s
}

// SeedAncestry preloads the emitted-block ancestry from a prior run, so a
// resumed stream can anchor reorgs that reach below its resume point. Only
// pointers within MaxReorgDepth of the head are kept.
func (s *Stream) SeedAncestry(ptrs []types.BlockPtr) {
	for _, ptr := range ptrs {
		if s.hasHead && ptr.Number+s.cfg.MaxReorgDepth < s.head.Number {
			continue
		}
		s.recent[ptr.Number] = ptr.Hash
	}
}

// Next blocks until the next event is available. It returns a fatal error
// when retries are exhausted or no common ancestor can be found; the
// stream is dead afterwards.
func (s *Stream) Next(ctx context.Context) (*Event, error) {
	if len(s.pending) > 0 {
		block := s.pending[0]
		s.pending = s.pending[1:]
		s.noteEmitted(block.Ptr)
		return &Event{Kind: KindAdvance, Block: block}, nil
	}

	target := s.cfg.StartBlock
	if s.hasHead {
		target = s.head.Number + 1
	}
	if err := s.waitForHeight(ctx, target); err != nil {
		return nil, err
	}

	block, err := s.fetchByNumber(ctx, target)
	if err != nil {
		return nil, err
	}

	if !s.hasHead || block.Ptr.ParentHash == s.head.Hash {
		s.noteEmitted(block.Ptr)
		return &Event{Kind: KindAdvance, Block: block}, nil
	}

	// the fetched block does not extend what we emitted: reorg
	ancestor, branch, err := s.findCommonAncestor(ctx, block)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{
		"ancestor": ancestor.Number,
		"branch":   len(branch),
	}).Warn("chain reorganization detected")

	s.pending = branch
	s.rewindTo(ancestor)
	return &Event{Kind: KindRevert, To: ancestor}, nil
}

// waitForHeight polls the head number until the chain reaches height.
func (s *Stream) waitForHeight(ctx context.Context, height uint64) error {
	for {
		var head uint64
		err := s.retry(ctx, "head number", func() error {
			var err error
			head, err = s.client.HeadNumber(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if head >= height {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

func (s *Stream) fetchByNumber(ctx context.Context, number uint64) (*chain.Block, error) {
	var block *chain.Block
	err := s.retry(ctx, "block by number", func() error {
		var err error
		block, err = s.client.BlockByNumber(ctx, number)
		return err
	})
	return block, err
}

func (s *Stream) fetchByHash(ctx context.Context, hash common.Hash) (*chain.Block, error) {
	var block *chain.Block
	err := s.retry(ctx, "block by hash", func() error {
		var err error
		block, err = s.client.BlockByHash(ctx, hash)
		return err
	})
	return block, err
}

// findCommonAncestor walks the new branch backwards until it meets a block
// this stream already emitted. It returns the ancestor pointer and the new
// branch blocks above it, oldest first (tip excluded — the caller already
// holds it at the end of the branch).
func (s *Stream) findCommonAncestor(ctx context.Context, tip *chain.Block) (types.BlockPtr, []*chain.Block, error) {
	branch := []*chain.Block{tip}
	cur := tip
	for depth := uint64(0); depth < s.cfg.MaxReorgDepth; depth++ {
		if cur.Ptr.Number == 0 {
			break
		}
		if hash, ok := s.recent[cur.Ptr.Number-1]; ok && hash == cur.Ptr.ParentHash {
			ancestor := types.BlockPtr{Number: cur.Ptr.Number - 1, Hash: hash}
			// oldest first
			for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
				branch[i], branch[j] = branch[j], branch[i]
			}
			return ancestor, branch, nil
		}
		parent, err := s.fetchByHash(ctx, cur.Ptr.ParentHash)
		if err != nil {
			return types.BlockPtr{}, nil, err
		}
		branch = append(branch, parent)
		cur = parent
	}
	return types.BlockPtr{}, nil, &types.ReorgDepthExceeded{Head: s.head, MaxDepth: s.cfg.MaxReorgDepth}
}

// retry runs op with bounded exponential backoff. Non-transient errors
// fail immediately; exhausting the budget is fatal for the stream.
func (s *Stream) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	if s.cfg.RetryBase > 0 {
		policy.InitialInterval = s.cfg.RetryBase
	}
	attempt := uint64(0)
	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !types.IsTransient(err) {
			return backoff.Permanent(err)
		}
		attempt++
		s.logger.WithField("attempt", attempt).Warnf("%s failed, retrying: %v", op, err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.cfg.MaxRetries), ctx))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Stream) noteEmitted(ptr types.BlockPtr) {
	s.head = ptr
	s.hasHead = true
	s.recent[ptr.Number] = ptr.Hash
	if ptr.Number > s.cfg.MaxReorgDepth {
		delete(s.recent, ptr.Number-s.cfg.MaxReorgDepth-1)
	}
}

func (s *Stream) rewindTo(ancestor types.BlockPtr) {
	for n := range s.recent {
		if n > ancestor.Number {
			delete(s.recent, n)
		}
	}
	s.head = ancestor
	s.hasHead = true
}
