package cache

import (
	"fmt"
	"testing"
	"time"

	exchange "execution-core/pkg/exchanges/common"
)

func TestSetGetDelete(t *testing.T) {
	c := NewShardedSymbolCache(0, 0)
	info := exchange.SymbolInfo{Symbol: "EURUSD", Point: 0.00001, Digits: 5}
	c.Set(info)
	c.Set(exchange.SymbolInfo{Symbol: "XAUUSD", Point: 0.01})

	got, ok := c.Get("EURUSD")
	if !ok || got != info {
		t.Fatalf("Get=%+v ok=%v, expected %+v", got, ok, info)
	}
	if c.Len() != 2 {
		t.Fatalf("Len=%d, expected 2", c.Len())
	}
	c.Delete("EURUSD")
	if _, ok := c.Get("EURUSD"); ok {
		t.Fatalf("EURUSD still cached after Delete")
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("Len=%d after Purge, expected 0", c.Len())
	}
}

func TestExpiry(t *testing.T) {
	c := NewShardedSymbolCache(0, 10*time.Millisecond)
	c.Set(exchange.SymbolInfo{Symbol: "EURUSD", Point: 0.00001})
	if _, ok := c.Get("EURUSD"); !ok {
		t.Fatalf("fresh entry not returned")
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("EURUSD"); ok {
		t.Fatalf("expired entry returned")
	}
}

func TestCapacityBound(t *testing.T) {
	c := NewShardedSymbolCache(numShards, 0)
	for i := 0; i < 200; i++ {
		c.Set(exchange.SymbolInfo{Symbol: fmt.Sprintf("SYM%03d", i), Point: 0.01})
	}
	if n := c.Len(); n > numShards {
		t.Fatalf("Len=%d, expected at most %d", n, numShards)
	}
}
