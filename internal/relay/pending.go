package relay

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Resolver is invoked exactly once when a pending request is resolved,
// resolved with an error, or cancelled. payload is nil when kind is
// non-empty.
type Resolver func(payload json.RawMessage, kind ErrorKind)

// StreamCallback is invoked for every partial delivered while a streaming
// request is in flight. It never fires after the request has resolved.
type StreamCallback func(payload json.RawMessage)

// pendingEntry is one outstanding correlated request, owned by exactly one
// Browser Session.
type pendingEntry struct {
	correlationID string
	targetAgentID string
	createdAt     time.Time
	resolve       Resolver
	stream        StreamCallback
	timer         *time.Timer
}

// elapsed returns how long the entry has been outstanding.
func (e *pendingEntry) elapsed() time.Duration {
	return time.Since(e.createdAt)
}

// PendingRegistry is the per-browser table of outstanding correlated
// requests (§4.7). It is not global — each Browser Session owns exactly
// one. Safe for concurrent use: Resolve/DeliverPartial are called from the
// read loops of potentially many different agent sessions concurrently as
// their responses arrive, ResolveError also from the owning browser's read
// loop, and deadline timers fire from their own goroutines.
type PendingRegistry struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
	logger  *zap.Logger
	metrics *Metrics
}

// NewPendingRegistry creates an empty PendingRegistry. metrics may be nil.
func NewPendingRegistry(logger *zap.Logger, metrics *Metrics) *PendingRegistry {
	return &PendingRegistry{
		entries: make(map[string]*pendingEntry),
		logger:  logger.Named("relay.pending"),
		metrics: metrics,
	}
}

// Create registers a new outstanding request. It arms an independent
// deadline timer that calls ResolveError(id, ErrKindTimeout) if it fires
// before the request is otherwise resolved. Returns ErrDuplicateCorrelationID
// if id is already outstanding — per §4.7 this indicates a broken caller,
// not a routing condition, and the caller should reject rather than forward.
func (p *PendingRegistry) Create(id, targetAgentID string, deadline time.Duration, resolve Resolver, stream StreamCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[id]; exists {
		return ErrDuplicateCorrelationID
	}

	e := &pendingEntry{
		correlationID: id,
		targetAgentID: targetAgentID,
		createdAt:     time.Now(),
		resolve:       resolve,
		stream:        stream,
	}
	e.timer = time.AfterFunc(deadline, func() {
		p.ResolveError(id, ErrKindTimeout)
	})
	p.entries[id] = e
	if p.metrics != nil {
		p.metrics.pendingRequests.Inc()
	}
	return nil
}

// take removes and returns the entry for id, disarming its timer. The
// second return is false if no such entry exists (already resolved,
// cancelled, or never created — e.g. a duplicate/late response).
func (p *PendingRegistry) take(id string) (*pendingEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return nil, false
	}
	delete(p.entries, id)
	e.timer.Stop()
	if p.metrics != nil {
		p.metrics.pendingRequests.Dec()
		p.metrics.requestDuration.Observe(e.elapsed().Seconds())
	}
	return e, true
}

// Resolve pops the entry for id and invokes its resolver with payload. A
// no-op (logged) if id is not outstanding.
func (p *PendingRegistry) Resolve(id string, payload json.RawMessage) {
	e, ok := p.take(id)
	if !ok {
		p.logger.Debug("resolve for unknown correlation id", zap.String("id", id))
		return
	}
	e.resolve(payload, "")
}

// ResolveError pops the entry for id and invokes its resolver with kind. A
// no-op if id is not outstanding (e.g. the timer fired after the request
// already resolved via the normal race-free take-once path).
func (p *PendingRegistry) ResolveError(id string, kind ErrorKind) {
	e, ok := p.take(id)
	if !ok {
		return
	}
	e.resolve(nil, kind)
}

// DeliverPartial invokes the streaming callback for id, if one was
// registered, and leaves the entry in place. A no-op if id is not
// outstanding or was created without a streaming callback.
func (p *PendingRegistry) DeliverPartial(id string, payload json.RawMessage) {
	p.mu.Lock()
	e, ok := p.entries[id]
	p.mu.Unlock()
	if !ok || e.stream == nil {
		return
	}
	e.stream(payload)
}

// CancelAll rejects every outstanding entry with kind and empties the
// registry. Called from the owning Browser Session's close handler.
func (p *PendingRegistry) CancelAll(kind ErrorKind) {
	p.mu.Lock()
	entries := make([]*pendingEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.entries = make(map[string]*pendingEntry)
	p.mu.Unlock()

	if p.metrics != nil && len(entries) > 0 {
		p.metrics.pendingRequests.Sub(float64(len(entries)))
	}
	for _, e := range entries {
		e.timer.Stop()
		e.resolve(nil, kind)
	}
}

// CancelByAgent rejects every outstanding entry whose target agent is
// agentID, with kind. Called when that agent goes offline.
func (p *PendingRegistry) CancelByAgent(agentID string, kind ErrorKind) {
	p.mu.Lock()
	var matched []*pendingEntry
	for id, e := range p.entries {
		if e.targetAgentID == agentID {
			matched = append(matched, e)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()

	if p.metrics != nil && len(matched) > 0 {
		p.metrics.pendingRequests.Sub(float64(len(matched)))
	}
	for _, e := range matched {
		e.timer.Stop()
		e.resolve(nil, kind)
	}
}
