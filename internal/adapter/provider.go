package adapter

import (
	"fmt"
	"sync"
	"time"
)

// RPCProvider tracks a primary and optional secondary RPC endpoint and fails
// over between them when the active one degrades.
type RPCProvider struct {
	mu sync.RWMutex

	primaryURL   string
	secondaryURL string
	currentURL   string

	consecutiveFails    int
	maxConsecutiveFails int
	lastFailure         time.Time
}

// NewRPCProvider creates a new RPC provider with primary and optional secondary URLs
func NewRPCProvider(primaryURL, secondaryURL string) (*RPCProvider, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}

	return &RPCProvider{
		primaryURL:          primaryURL,
		secondaryURL:        secondaryURL,
		currentURL:          primaryURL,
		maxConsecutiveFails: 5,
	}, nil
}

// CurrentURL returns the currently active RPC endpoint URL
func (p *RPCProvider) CurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentURL
}

// Failover switches to the other endpoint
func (p *RPCProvider) Failover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentURL == p.primaryURL {
		if p.secondaryURL == "" {
			return fmt.Errorf("no secondary provider configured")
		}
		p.currentURL = p.secondaryURL
		return nil
	}
	p.currentURL = p.primaryURL
	return nil
}

// RecordSuccess resets the failure counter
func (p *RPCProvider) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFails = 0
}

// RecordFailure records a failed request
func (p *RPCProvider) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFails++
	p.lastFailure = time.Now()
}

// IsHealthy returns true if the active endpoint is below the failure threshold
func (p *RPCProvider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.consecutiveFails < p.maxConsecutiveFails
}

// Reset resets the provider to use the primary endpoint
func (p *RPCProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentURL = p.primaryURL
	p.consecutiveFails = 0
}
