package registry

import (
	"sync"

	"signaling/internal/models"
)

// Registry is the room table plus its inverse connection index. The two
// maps are mutated together under one lock: every connection id present in
// some room's member set has exactly one connRoom entry pointing at that
// room, and vice versa.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*models.Room
	connRoom map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*models.Room),
		connRoom: make(map[string]string),
	}
}

// Join adds connID to roomID, creating the room lazily, and returns the
// other members of the room. The snapshot never contains connID itself,
// so a repeated join of the same room (a benign client retry) yields the
// same view as the first. A connection already registered elsewhere is
// removed from its old room first; a well-behaved client never triggers
// that path, but it must not corrupt state if one does.
func (reg *Registry) Join(connID, roomID string) (existing []string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if prev, ok := reg.connRoom[connID]; ok && prev != roomID {
		reg.removeLocked(connID, prev)
	}

	room, ok := reg.rooms[roomID]
	if !ok {
		room = models.NewRoom(roomID)
		reg.rooms[roomID] = room
	}

	existing = make([]string, 0, len(room.Members))
	for id := range room.Members {
		if id != connID {
			existing = append(existing, id)
		}
	}
	room.Members[connID] = struct{}{}
	reg.connRoom[connID] = roomID
	return existing
}

// Leave removes connID from whatever room it is in. It returns the room id
// that was left and, when this removal destroyed the room, the agent
// descriptor the room held so the caller can end its provisioner session.
// Leaving while not in any room is a no-op with ok = false.
func (reg *Registry) Leave(connID string) (roomID string, orphanedAgent *models.AgentDescriptor, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID, ok = reg.connRoom[connID]
	if !ok {
		return "", nil, false
	}
	orphanedAgent = reg.removeLocked(connID, roomID)
	return roomID, orphanedAgent, true
}

// removeLocked deletes connID from roomID and drops the room the moment it
// empties, returning the destroyed room's agent if any. Callers hold mu.
func (reg *Registry) removeLocked(connID, roomID string) *models.AgentDescriptor {
	delete(reg.connRoom, connID)
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	delete(room.Members, connID)
	if len(room.Members) == 0 {
		delete(reg.rooms, roomID)
		return room.Agent
	}
	return nil
}

// RoomOf returns the room connID currently belongs to.
func (reg *Registry) RoomOf(connID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	roomID, ok := reg.connRoom[connID]
	return roomID, ok
}

// Members returns the member ids of roomID.
func (reg *Registry) Members(roomID string) ([]string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.MemberIDs(), true
}

// SetAgent stores the agent descriptor on an existing room. It refuses when
// the room does not exist so a descriptor never outlives its room.
func (reg *Registry) SetAgent(roomID string, agent *models.AgentDescriptor) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[roomID]
	if !ok {
		return false
	}
	room.Agent = agent
	return true
}

// Agent returns the agent descriptor held by roomID, if any.
func (reg *Registry) Agent(roomID string) (*models.AgentDescriptor, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[roomID]
	if !ok || room.Agent == nil {
		return nil, false
	}
	return room.Agent, true
}

// Snapshot returns a diagnostic view of roomID.
func (reg *Registry) Snapshot(roomID string) (models.RoomStatus, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[roomID]
	if !ok {
		return models.RoomStatus{}, false
	}
	return models.RoomStatus{
		ID:          room.ID,
		MemberCount: len(room.Members),
		Members:     room.MemberIDs(),
		HasAgent:    room.Agent != nil,
		CreatedAt:   room.CreatedAt,
	}, true
}

// ActiveConversationIDs returns the provisioner conversation ids still
// bound to live rooms.
func (reg *Registry) ActiveConversationIDs() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var ids []string
	for _, room := range reg.rooms {
		if room.Agent != nil && room.Agent.ConversationID != "" {
			ids = append(ids, room.Agent.ConversationID)
		}
	}
	return ids
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// ConnCount returns the number of connections currently in rooms.
func (reg *Registry) ConnCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.connRoom)
}
