package orchestrator

import (
	"sort"
	"sync"
)

// counters tracks message outcomes. All methods are thread-safe via mu.
type counters struct {
	mu       sync.Mutex
	received int
	replied  int
	failed   int
}

func (c *counters) recordReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received++
}

func (c *counters) recordReplied() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replied++
}

func (c *counters) recordFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

// ProviderStatus describes one connector's breaker.
type ProviderStatus struct {
	Name                string `json:"name"`
	Breaker             string `json:"breaker"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// Stats is a point-in-time view of the orchestrator.
type Stats struct {
	Received  int              `json:"received"`
	Replied   int              `json:"replied"`
	Failed    int              `json:"failed"`
	InFlight  int              `json:"in_flight"`
	Sessions  int              `json:"sessions"`
	Providers []ProviderStatus `json:"providers"`
}

// Stats returns message counters, session count and breaker states.
func (o *Orchestrator) Stats() Stats {
	o.stats.mu.Lock()
	s := Stats{
		Received: o.stats.received,
		Replied:  o.stats.replied,
		Failed:   o.stats.failed,
	}
	o.stats.mu.Unlock()
	s.InFlight = s.Received - s.Replied - s.Failed
	s.Sessions = o.store.Len()

	for name, g := range o.guards {
		s.Providers = append(s.Providers, ProviderStatus{
			Name:                name,
			Breaker:             g.breaker.State(),
			ConsecutiveFailures: g.breaker.GetConsecutiveFailures(),
		})
	}
	sort.Slice(s.Providers, func(i, j int) bool { return s.Providers[i].Name < s.Providers[j].Name })
	return s
}
