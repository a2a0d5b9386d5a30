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
	"strings"

	"github.com/cerc-io/eth-subgraph-indexer/pkg/types"
)

// AttrType is one declared attribute type, e.g. "BigInt" or "[String]".
type AttrType struct {
	Kind types.ValueKind
	List bool
	Elem types.ValueKind
}

func (t AttrType) String() string {
	if t.List {
		return "[" + t.Elem.String() + "]"
	}
	return t.Kind.String()
}

var scalarKinds = map[string]types.ValueKind{
	"String":     types.KindString,
	"Bytes":      types.KindBytes,
	"Bool":       types.KindBool,
	"BigInt":     types.KindBigInt,
	"BigDecimal": types.KindBigDecimal,
}

// ParseAttrType parses a declared type name from the schema document.
func ParseAttrType(s string) (AttrType, error) {
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		elem, ok := scalarKinds[s[1:len(s)-1]]
		if !ok {
			return AttrType{}, fmt.Errorf("unknown list element type %q", s[1:len(s)-1])
		}
		return AttrType{Kind: types.KindList, List: true, Elem: elem}, nil
	}
	kind, ok := scalarKinds[s]
	if !ok {
		return AttrType{}, fmt.Errorf("unknown attribute type %q", s)
	}
	return AttrType{Kind: kind}, nil
}

// EntityType declares the attributes one entity type may carry.
type EntityType struct {
	Name       string
	Attributes map[string]AttrType
}

// Schema is the set of entity types a subgraph may write. It is static for
// the life of a deployment.
type Schema struct {
	EntityTypes map[string]EntityType
}

// Validate checks a staged write against the schema. Violations are
// *types.StoreWriteError: fatal for the block, since mappings and schema
// disagreeing means the output would be undefined.
func (s *Schema) Validate(key types.EntityKey, data types.Entity) error {
	et, ok := s.EntityTypes[key.Type]
	if !ok {
		return &types.StoreWriteError{Key: key, Detail: "undeclared entity type"}
	}
	for name, val := range data {
		decl, ok := et.Attributes[name]
		if !ok {
			return &types.StoreWriteError{Key: key, Attr: name, Detail: "undeclared attribute"}
		}
		if val.IsNull() {
			continue
		}
		if val.Kind() != decl.Kind {
			return &types.StoreWriteError{
				Key: key, Attr: name,
				Detail: fmt.Sprintf("expected %s, got %s", decl, val.Kind()),
			}
		}
		if decl.List {
			for _, elem := range val.List() {
				if !elem.IsNull() && elem.Kind() != decl.Elem {
					return &types.StoreWriteError{
						Key: key, Attr: name,
						Detail: fmt.Sprintf("list element: expected %s, got %s", decl.Elem, elem.Kind()),
					}
				}
			}
		}
	}
	return nil
}
