// Package memory is an in-memory gateway.Gateway fake, used by tests in
// place of a live backend.
package memory

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/fabnet/client/pkg/gateway"
)

// Gateway is a goroutine-safe, in-process gateway.Gateway.
type Gateway struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New constructs an empty Gateway.
func New() *Gateway {
	return &Gateway{objects: make(map[string][]byte)}
}

func (g *Gateway) Put(ctx context.Context, block gateway.BlockReader, replicaCount int, allowRewrite bool) (string, error) {
	h := sha1.New()
	var all []byte
	for {
		chunk, err := block.ReadRaw(64 * 1024)
		if err != nil {
			return "", fmt.Errorf("memory gateway: read block: %w", err)
		}
		if len(chunk) == 0 {
			break
		}
		h.Write(chunk)
		all = append(all, chunk...)
	}
	key := hex.EncodeToString(h.Sum(nil))

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.objects[key]; exists && !allowRewrite {
		return key, nil
	}
	g.objects[key] = all
	return key, nil
}

func (g *Gateway) Get(ctx context.Context, remoteKey string, replicaCount int, out gateway.BlockWriter) error {
	g.mu.RLock()
	data, ok := g.objects[remoteKey]
	g.mu.RUnlock()
	if !ok {
		return gateway.ErrNotFound
	}
	return out.WriteRaw(data)
}

func (g *Gateway) Remove(ctx context.Context, remoteKey string, replicaCount int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.objects[remoteKey]; !ok {
		return gateway.ErrNotFound
	}
	delete(g.objects, remoteKey)
	return nil
}

// Exists reports whether remoteKey is present — used by tests asserting
// cascade-delete / refcount behavior.
func (g *Gateway) Exists(remoteKey string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.objects[remoteKey]
	return ok
}

var _ gateway.Gateway = (*Gateway)(nil)
