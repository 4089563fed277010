package stub

import (
	"context"
	"errors"
	"sync"

	"solana-nft-market/internal/solana"
)

// WSClient implements solana.WSClient for testing. Notifications pushed with
// Send are delivered to every subscription.
type WSClient struct {
	mu     sync.Mutex
	subs   []chan solana.AccountNotification
	closed bool
}

var _ solana.WSClient = (*WSClient)(nil)

// NewWSClient creates a new stub websocket client.
func NewWSClient() *WSClient {
	return &WSClient{}
}

// SubscribeProgram returns a channel fed by Send.
func (c *WSClient) SubscribeProgram(_ context.Context, _ solana.ProgramFilter) (<-chan solana.AccountNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("client closed")
	}
	ch := make(chan solana.AccountNotification, 64)
	c.subs = append(c.subs, ch)
	return ch, nil
}

// Send delivers n to all subscriptions.
func (c *WSClient) Send(n solana.AccountNotification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		ch <- n
	}
}

// Close ends every subscription.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, ch := range c.subs {
		close(ch)
	}
	return nil
}

// Subscribers reports how many subscriptions are open.
func (c *WSClient) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
