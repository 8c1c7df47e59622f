package gateway

import (
	"context"

	"execution-core/pkg/cache"
	exchange "execution-core/pkg/exchanges/common"
)

// SymbolCachingGateway answers GetSymbolInfo from a cache and passes every other call
// through. Contract metadata is static for a session, so cache hits skip the venue.
type SymbolCachingGateway struct {
	exchange.Gateway
	cache *cache.ShardedSymbolCache
}

// NewSymbolCachingGateway wraps next with a symbol cache.
func NewSymbolCachingGateway(next exchange.Gateway, c *cache.ShardedSymbolCache) *SymbolCachingGateway {
	return &SymbolCachingGateway{Gateway: next, cache: c}
}

func (g *SymbolCachingGateway) GetSymbolInfo(ctx context.Context, symbol string) (exchange.SymbolInfo, error) {
	if info, ok := g.cache.Get(symbol); ok {
		return info, nil
	}
	info, err := g.Gateway.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return exchange.SymbolInfo{}, err
	}
	g.cache.Set(info)
	return info, nil
}
