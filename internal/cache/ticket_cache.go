package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pnishada/service-desk/internal/domain"
	"github.com/Pnishada/service-desk/internal/events"
)

// TicketCache is the in-memory representation of fetched tickets and their
// histories, keyed by ticket id. Server responses and optimistic local
// entries are merged so that a push notification and a direct update
// response can land in either order and converge on the same state.
//
// Merge rule: the server history is the base. Local-only entries (client
// generated id, no server id) are appended after it in their original
// order, except when an equivalent server entry already confirms the same
// change, in which case the placeholder is folded away. History length
// never decreases from the UI's point of view.
type TicketCache struct {
	mu         sync.RWMutex
	tickets    map[int64]domain.Ticket
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewTicketCache creates an empty cache.
func NewTicketCache(dispatcher events.Dispatcher, logger *zap.Logger) *TicketCache {
	return &TicketCache{
		tickets:    make(map[int64]domain.Ticket),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Get returns the last known snapshot for the ticket, possibly stale.
func (c *TicketCache) Get(ticketID int64) (domain.Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ticket, ok := c.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, false
	}
	return ticket.Clone(), true
}

// List returns all cached tickets ordered by id.
func (c *TicketCache) List() []domain.Ticket {
	c.mu.RLock()
	out := make([]domain.Ticket, 0, len(c.tickets))
	for _, ticket := range c.tickets {
		out = append(out, ticket.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Upsert replaces the cached snapshot with a server response, preserving
// optimistic local history entries that the server has not confirmed yet.
// Snapshot fields are last-applied-wins; history is additive.
func (c *TicketCache) Upsert(ticket domain.Ticket) {
	c.mu.Lock()
	c.merge(ticket)
	c.mu.Unlock()

	c.publish(events.TicketUpdated(ticket.ID))
}

// AppendOptimistic records a local history entry before server confirmation
// and returns it with its client-generated id filled in. The returned entry
// is what DropOptimistic and Reconcile later resolve against.
func (c *TicketCache) AppendOptimistic(ticketID int64, entry domain.HistoryEntry) (domain.HistoryEntry, bool) {
	c.mu.Lock()
	ticket, ok := c.tickets[ticketID]
	if !ok {
		c.mu.Unlock()
		return domain.HistoryEntry{}, false
	}

	entry.ID = 0
	entry.TicketID = ticketID
	if entry.ClientID == "" {
		entry.ClientID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	ticket.History = append(ticket.History, entry)
	c.tickets[ticketID] = ticket
	c.mu.Unlock()

	c.publish(events.TicketUpdated(ticketID))
	return entry, true
}

// Reconcile folds the outcome of an update request into confirmed state:
// the ticket snapshot is replaced and, when the server returned the history
// entry for the change, the matching optimistic placeholder is replaced by
// it rather than duplicated.
func (c *TicketCache) Reconcile(ticketID int64, serverTicket domain.Ticket, serverEntry *domain.HistoryEntry) {
	if serverEntry != nil && !historyContains(serverTicket.History, *serverEntry) {
		serverTicket.History = append(serverTicket.History, *serverEntry)
	}

	c.mu.Lock()
	c.merge(serverTicket)
	c.mu.Unlock()

	c.publish(events.TicketUpdated(ticketID))
}

// DropOptimistic rolls back one unconfirmed entry after the server rejected
// the change or the request never reached it.
func (c *TicketCache) DropOptimistic(ticketID int64, clientID string) {
	c.mu.Lock()
	ticket, ok := c.tickets[ticketID]
	if !ok {
		c.mu.Unlock()
		return
	}
	kept := ticket.History[:0:0]
	for _, entry := range ticket.History {
		if !entry.Confirmed() && entry.ClientID == clientID {
			continue
		}
		kept = append(kept, entry)
	}
	ticket.History = kept
	c.tickets[ticketID] = ticket
	c.mu.Unlock()

	c.publish(events.TicketUpdated(ticketID))
}

// merge applies a server snapshot under the lock. Applying the same
// snapshot repeatedly, or interleaved with a push-triggered refresh, yields
// the same cache state.
func (c *TicketCache) merge(incoming domain.Ticket) {
	incoming = incoming.Clone()
	existing, ok := c.tickets[incoming.ID]
	if !ok {
		c.tickets[incoming.ID] = incoming
		return
	}

	// List endpoints omit history; an absent list is "unchanged", not
	// "empty", otherwise confirmed entries would silently vanish.
	if len(incoming.History) == 0 {
		incoming.History = existing.History
		c.tickets[incoming.ID] = incoming
		return
	}

	for _, local := range existing.History {
		if local.Confirmed() {
			continue
		}
		if historyContains(incoming.History, local) {
			continue // server confirmed this change; keep its entry only
		}
		incoming.History = append(incoming.History, local)
	}
	c.tickets[incoming.ID] = incoming
}

func historyContains(entries []domain.HistoryEntry, candidate domain.HistoryEntry) bool {
	for _, entry := range entries {
		if candidate.Confirmed() && entry.ID == candidate.ID {
			return true
		}
		if entry.EquivalentTo(candidate) {
			return true
		}
	}
	return false
}

func (c *TicketCache) publish(event events.Event) {
	if c.dispatcher == nil {
		return
	}
	_ = c.dispatcher.Publish(context.Background(), event)
}
