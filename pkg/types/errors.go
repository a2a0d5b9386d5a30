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

package types

import (
	"errors"
	"fmt"
)

// ChainClientError wraps a failed chain client call. Transient errors are
// retried with backoff; non-transient ones halt the subgraph.
type ChainClientError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *ChainClientError) Error() string {
	return fmt.Sprintf("chain client %s: %v", e.Op, e.Err)
}

func (e *ChainClientError) Unwrap() error { return e.Err }

// ReorgDepthExceeded means no common ancestor was found within the
// configured search depth. Fatal: the subgraph cannot re-anchor itself.
type ReorgDepthExceeded struct {
	Head     BlockPtr
	MaxDepth uint64
}

func (e *ReorgDepthExceeded) Error() string {
	return fmt.Sprintf("no common ancestor within %d blocks of %s", e.MaxDepth, e.Head)
}

// MappingErrorKind classifies why a mapping invocation trapped.
type MappingErrorKind uint8

const (
	MappingTrap MappingErrorKind = iota
	MappingTimeout
	MappingResourceLimit
	MappingAbort
)

func (k MappingErrorKind) String() string {
	switch k {
	case MappingTrap:
		return "trap"
	case MappingTimeout:
		return "timeout"
	case MappingResourceLimit:
		return "resource limit"
	case MappingAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// MappingError reports a failed mapping invocation. Whether it is fatal for
// the whole block depends on the data source's failure policy.
type MappingError struct {
	Handler string
	Kind    MappingErrorKind
	Detail  string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %s: %s: %s", e.Handler, e.Kind, e.Detail)
}

// StoreWriteError reports a write that violates the entity schema. Always
// fatal for the block: it means the mappings and schema disagree.
type StoreWriteError struct {
	Key    EntityKey
	Attr   string
	Detail string
}

func (e *StoreWriteError) Error() string {
	if e.Attr != "" {
		return fmt.Sprintf("invalid write to %s.%s: %s", e.Key, e.Attr, e.Detail)
	}
	return fmt.Sprintf("invalid write to %s: %s", e.Key, e.Detail)
}

// CommitError reports a persistence failure during an atomic block commit.
// The commit either fully applied or not at all, so retrying is safe.
type CommitError struct {
	Block BlockPtr
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit of block %s failed: %v", e.Block, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var cce *ChainClientError
	if errors.As(err, &cce) {
		return cce.Transient
	}
	var ce *CommitError
	return errors.As(err, &ce)
}
