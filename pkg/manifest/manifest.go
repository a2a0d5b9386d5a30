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

package manifest

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v2"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// EventHandler binds a log topic to a mapping handler. A zero Topic matches
// every log from the data source's contract.
type EventHandler struct {
	Topic   common.Hash
	Handler string
}

// CallHandler binds a 4-byte function selector to a mapping handler.
type CallHandler struct {
	Selector [4]byte
	Handler  string
}

// BlockHandler invokes a mapping handler once per block.
type BlockHandler struct {
	Handler string
}

// DataSource is one declared (contract, filters, handlers) binding.
// Registration order within the manifest is part of the deterministic
// trigger ordering contract.
type DataSource struct {
	Name             string
	Address          common.Address
	StartBlock       uint64
	CausalityRegion  string
	TolerateFailures bool
	EventHandlers    []EventHandler
	CallHandlers     []CallHandler
	BlockHandlers    []BlockHandler
}

// Manifest describes one subgraph deployment: identity, schema and data
// sources. It is read once at subgraph start and never re-read mid-run.
type Manifest struct {
	SpecVersion string
	Deployment  types.DeploymentID
	Schema      Schema
	DataSources []DataSource
}

// Raw document shapes for YAML decoding.
type rawManifest struct {
	SpecVersion string                     `yaml:"specVersion"`
	Deployment  string                     `yaml:"deployment"`
	Schema      map[string]rawEntityType   `yaml:"schema"`
	DataSources []rawDataSource            `yaml:"dataSources"`
}

type rawEntityType struct {
	Attributes map[string]string `yaml:"attributes"`
}

type rawDataSource struct {
	Name             string `yaml:"name"`
	Address          string `yaml:"address"`
	StartBlock       uint64 `yaml:"startBlock"`
	CausalityRegion  string `yaml:"causalityRegion"`
	TolerateFailures bool   `yaml:"tolerateFailures"`
	EventHandlers    []struct {
		Topic   string `yaml:"topic"`
		Handler string `yaml:"handler"`
	} `yaml:"eventHandlers"`
	CallHandlers []struct {
		Selector string `yaml:"selector"`
		Handler  string `yaml:"handler"`
	} `yaml:"callHandlers"`
	BlockHandlers []struct {
		Handler string `yaml:"handler"`
	} `yaml:"blockHandlers"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses a manifest document and validates its static invariants.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if raw.Deployment == "" {
		return nil, fmt.Errorf("manifest missing deployment id")
	}
	m := &Manifest{
		SpecVersion: raw.SpecVersion,
		Deployment:  types.DeploymentID(raw.Deployment),
		Schema:      Schema{EntityTypes: make(map[string]EntityType, len(raw.Schema))},
	}
	for name, ret := range raw.Schema {
		et := EntityType{Name: name, Attributes: make(map[string]AttrType, len(ret.Attributes))}
		for attr, typeName := range ret.Attributes {
			at, err := ParseAttrType(typeName)
			if err != nil {
				return nil, fmt.Errorf("entity %s attribute %s: %w", name, attr, err)
			}
			et.Attributes[attr] = at
		}
		m.Schema.EntityTypes[name] = et
	}

	seen := make(map[string]bool, len(raw.DataSources))
	for _, rds := range raw.DataSources {
		if rds.Name == "" {
			return nil, fmt.Errorf("data source missing name")
		}
		if seen[rds.Name] {
			return nil, fmt.Errorf("duplicate data source %q", rds.Name)
		}
		seen[rds.Name] = true

		ds := DataSource{
			Name:             rds.Name,
			StartBlock:       rds.StartBlock,
			CausalityRegion:  rds.CausalityRegion,
			TolerateFailures: rds.TolerateFailures,
		}
		if ds.CausalityRegion == "" {
			ds.CausalityRegion = rds.Name
		}
		if rds.Address != "" {
			if !common.IsHexAddress(rds.Address) {
				return nil, fmt.Errorf("data source %s: invalid address %q", rds.Name, rds.Address)
			}
			ds.Address = common.HexToAddress(rds.Address)
		}
		for _, h := range rds.EventHandlers {
			eh := EventHandler{Handler: h.Handler}
			if h.Topic != "" {
				eh.Topic = common.HexToHash(h.Topic)
			}
			ds.EventHandlers = append(ds.EventHandlers, eh)
		}
		for _, h := range rds.CallHandlers {
			sel, err := hexutil.Decode(h.Selector)
			if err != nil || len(sel) != 4 {
				return nil, fmt.Errorf("data source %s: invalid selector %q", rds.Name, h.Selector)
			}
			ch := CallHandler{Handler: h.Handler}
			copy(ch.Selector[:], sel)
			ds.CallHandlers = append(ds.CallHandlers, ch)
		}
		for _, h := range rds.BlockHandlers {
			ds.BlockHandlers = append(ds.BlockHandlers, BlockHandler{Handler: h.Handler})
		}
		m.DataSources = append(m.DataSources, ds)
	}
	if len(m.DataSources) == 0 {
		return nil, fmt.Errorf("manifest declares no data sources")
	}
	return m, nil
}

// EarliestStartBlock returns the lowest start block across data sources.
func (m *Manifest) EarliestStartBlock() uint64 {
	min := m.DataSources[0].StartBlock
	for _, ds := range m.DataSources[1:] {
		if ds.StartBlock < min {
			min = ds.StartBlock
		}
	}
	return min
}
