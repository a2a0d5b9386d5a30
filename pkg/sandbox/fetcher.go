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

package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// maxContentSize caps one auxiliary payload; anything larger would blow
// the invocation's memory budget anyway.
const maxContentSize = 32 << 20

// GatewayFetcher resolves content-addressed payloads from an HTTP gateway
// by GET <base>/<hex hash>. The Host verifies the hash and pins the bytes;
// the fetcher itself stays dumb.
type GatewayFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewGatewayFetcher(baseURL string) *GatewayFetcher {
	return &GatewayFetcher{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GatewayFetcher) Fetch(ctx context.Context, hash common.Hash) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", g.BaseURL, hash.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s for %s", resp.Status, hash.Hex())
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxContentSize))
}

// NullFetcher fails every fetch; for deployments whose mappings never
// reference auxiliary content.
type NullFetcher struct{}

func (NullFetcher) Fetch(_ context.Context, hash common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("no content fetcher configured (wanted %s)", hash.Hex())
}
