package inmemory

import (
	"log/slog"
	"sync"

	"github.com/sharetube/partysync/internal/repository/connection"
	"golang.org/x/exp/maps"
)

// repo holds the connections of members attached to this instance, grouped
// by party.
type repo struct {
	parties map[string]map[string]connection.Conn
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		parties: make(map[string]map[string]connection.Conn),
		logger:  logger,
	}
}

// Add registers conn for the member. A previous connection of the same member
// is closed and replaced.
func (r *repo) Add(partyId, memberId string, conn connection.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug("add connection", "party_id", partyId, "member_id", memberId)
	members, ok := r.parties[partyId]
	if !ok {
		members = make(map[string]connection.Conn)
		r.parties[partyId] = members
	}

	if old, ok := members[memberId]; ok && old != conn {
		old.Close()
	}

	members[memberId] = conn
}

// Remove closes and unregisters conn. It is a no-op when the member has
// already been re-registered with another connection.
func (r *repo) Remove(partyId, memberId string, conn connection.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.parties[partyId]
	if !ok {
		return connection.ErrNotFound
	}

	current, ok := members[memberId]
	if !ok || current != conn {
		return connection.ErrNotFound
	}

	r.logger.Debug("remove connection", "party_id", partyId, "member_id", memberId)
	current.Close()
	delete(members, memberId)
	if len(members) == 0 {
		delete(r.parties, partyId)
	}

	return nil
}

// RemoveParty closes every connection of the party.
func (r *repo) RemoveParty(partyId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.parties[partyId] {
		conn.Close()
	}

	delete(r.parties, partyId)
}

// GetConns returns a copy of the party's connections keyed by member id.
func (r *repo) GetConns(partyId string) map[string]connection.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.parties[partyId])
}

// GetPartyIds lists the parties with at least one connection on this instance.
func (r *repo) GetPartyIds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Keys(r.parties)
}
