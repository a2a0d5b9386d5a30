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

package store

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// versionRecord is one entity version: data valid over [from, to), where
// from lives in the key. An open record has no upper bound yet.
type versionRecord struct {
	open bool
	to   uint64 // meaningful only when !open
	data types.Entity
}

func (r *versionRecord) validAt(from, asOf uint64) bool {
	return from <= asOf && (r.open || asOf < r.to)
}

func (r *versionRecord) encode() []byte {
	var buf []byte
	if r.open {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
		var tmp [binary.MaxVarintLen64]byte
		buf = append(buf, tmp[:binary.PutUvarint(tmp[:], r.to)]...)
	}
	return r.data.AppendCanonical(buf)
}

func decodeVersionRecord(b []byte) (*versionRecord, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("empty version record")
	}
	r := &versionRecord{open: b[0] == 1}
	b = b[1:]
	if !r.open {
		to, n := binary.Uvarint(b)
		if n <= 0 {
			return nil, fmt.Errorf("truncated version record")
		}
		r.to = to
		b = b[n:]
	}
	data, err := types.DecodeEntity(b)
	if err != nil {
		return nil, fmt.Errorf("decoding version data: %w", err)
	}
	r.data = data
	return r, nil
}

func encodeBlockPtr(p types.BlockPtr) []byte {
	buf := make([]byte, 8, 8+2*common.HashLength)
	binary.BigEndian.PutUint64(buf, p.Number)
	buf = append(buf, p.Hash[:]...)
	return append(buf, p.ParentHash[:]...)
}

func decodeBlockPtr(b []byte) (types.BlockPtr, error) {
	if len(b) != 8+2*common.HashLength {
		return types.BlockPtr{}, fmt.Errorf("malformed block pointer record of %d bytes", len(b))
	}
	var p types.BlockPtr
	p.Number = binary.BigEndian.Uint64(b)
	copy(p.Hash[:], b[8:])
	copy(p.ParentHash[:], b[8+common.HashLength:])
	return p, nil
}

// Health is the externally visible state of a subgraph deployment.
type Health uint8

const (
	HealthHealthy Health = iota
	HealthFailed
)

func (h Health) String() string {
	if h == HealthFailed {
		return "failed"
	}
	return "healthy"
}

// StatusRecord reports a deployment's health and, when failed, the error
// that halted it. A failed deployment keeps serving reads at its last
// committed block.
type StatusRecord struct {
	Health    Health
	LastError string
}

func (s *StatusRecord) encode() []byte {
	return append([]byte{byte(s.Health)}, s.LastError...)
}

func decodeStatusRecord(b []byte) (*StatusRecord, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("empty status record")
	}
	return &StatusRecord{Health: Health(b[0]), LastError: string(b[1:])}, nil
}
