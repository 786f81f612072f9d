// Package session owns the registry of connected chat identities and the
// presenter slot. All access is serialized internally; callers only ever
// see atomic operations and lock-free copies.
package session

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrUsernameTaken is returned for duplicate or empty usernames. An
	// empty username is treated as always taken so the rejection path is
	// unambiguous.
	ErrUsernameTaken = errors.New("username taken or invalid")

	// ErrNotRegistered is returned when an operation names a username
	// with no live session.
	ErrNotRegistered = errors.New("username not registered")
)

// Status is a presence state. The domain is exactly Online and Away;
// anything else coming off the wire is coerced to Online.
type Status string

const (
	StatusOnline Status = "Online"
	StatusAway   Status = "Away"
)

// ParseStatus coerces a wire value into the status domain.
func ParseStatus(s string) Status {
	if s == string(StatusAway) {
		return StatusAway
	}
	return StatusOnline
}

// Sender delivers one protocol line to a connected peer. Implementations
// must be safe for concurrent use; the registry calls them only outside
// its lock.
type Sender interface {
	Send(line string) error
}

// Info is a lock-free copy of one session's visible state.
type Info struct {
	Username string `json:"username"`
	Status   Status `json:"status"`
}

type entry struct {
	status Status
	sender Sender
}

// Registry is the single source of truth for who is online and who holds
// the presenter slot.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	presenter string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Register atomically checks and inserts a new session with status Online.
func (r *Registry) Register(username string, sender Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if username == "" {
		return ErrUsernameTaken
	}
	if _, exists := r.sessions[username]; exists {
		return ErrUsernameTaken
	}
	r.sessions[username] = &entry{status: StatusOnline, sender: sender}
	return nil
}

// Unregister removes a session. It reports whether the session existed
// and whether it held the presenter slot, which is cleared as part of the
// same atomic step.
func (r *Registry) Unregister(username string) (removed, heldPresenter bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[username]; exists {
		delete(r.sessions, username)
		removed = true
	}
	if r.presenter == username && username != "" {
		r.presenter = ""
		heldPresenter = true
	}
	return removed, heldPresenter
}

// SetStatus updates a session's presence status.
func (r *Registry) SetStatus(username string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.sessions[username]
	if !exists {
		return ErrNotRegistered
	}
	e.status = status
	return nil
}

// Snapshot returns the registered sessions sorted by username.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	infos := make([]Info, 0, len(r.sessions))
	for name, e := range r.sessions {
		infos = append(infos, Info{Username: name, Status: e.status})
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Username < infos[j].Username })
	return infos
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sender returns the delivery handle for a username.
func (r *Registry) Sender(username string) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.sessions[username]
	if !exists {
		return nil, false
	}
	return e.sender, true
}

// Recipients returns the delivery handles of every session except the
// named one, as a copy safe to use outside the lock. An empty exclude
// returns everyone.
func (r *Registry) Recipients(exclude string) []Sender {
	r.mu.Lock()
	defer r.mu.Unlock()

	senders := make([]Sender, 0, len(r.sessions))
	for name, e := range r.sessions {
		if exclude != "" && name == exclude {
			continue
		}
		senders = append(senders, e.sender)
	}
	return senders
}

// Presenter returns the current presenter slot holder, if any.
func (r *Registry) Presenter() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presenter, r.presenter != ""
}

// IsPresenter reports whether the named session currently holds the slot.
func (r *Registry) IsPresenter(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return username != "" && r.presenter == username
}

// RequestPresenter runs the arbitration decision for one request. When
// the slot is free, or the recorded holder has no live session (stale
// state self-heals as if the slot were free), the requester takes the
// slot and granted is true. Otherwise the current holder's name and
// handle are returned so the request can be forwarded.
func (r *Registry) RequestPresenter(username string) (granted bool, holder string, holderSender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[username]; !exists {
		return false, "", nil
	}

	if r.presenter != "" {
		if e, online := r.sessions[r.presenter]; online {
			return false, r.presenter, e.sender
		}
		// Presenter vanished without cleanup; treat the slot as free.
	}

	r.presenter = username
	return true, "", nil
}

// TransferPresenter moves the slot from one session to another. It only
// succeeds while from still holds the slot and to is registered, so a
// stale response from a superseded presenter never mutates state. On
// success it returns the new presenter's handle.
func (r *Registry) TransferPresenter(from, to string) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if from == "" || r.presenter != from {
		return nil, false
	}
	e, exists := r.sessions[to]
	if !exists {
		return nil, false
	}
	r.presenter = to
	return e.sender, true
}

// ReleasePresenter clears the slot if the named session holds it.
func (r *Registry) ReleasePresenter(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if username == "" || r.presenter != username {
		return false
	}
	r.presenter = ""
	return true
}
