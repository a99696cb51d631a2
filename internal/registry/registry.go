// Package registry keeps the server's two-stage connection membership: a
// pending set of channels without an alias and a validated set that is the
// broadcast target.
package registry

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/vovakirdan/relaychat/internal/conn"
)

var (
	ErrAliasTaken = errors.New("alias already in use")
	ErrNotPending = errors.New("channel is not pending admission")
	ErrEmptyAlias = errors.New("empty alias")
)

// Registry holds both sets under one mutex. A channel is in at most one set
// and every validated channel has an alias unique ignoring case.
type Registry struct {
	mu        sync.Mutex
	pending   []*conn.Channel
	validated []*conn.Channel
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Enqueue adds ch to the pending set. Returns false if ch is already known.
func (r *Registry) Enqueue(ch *conn.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.pending, ch) || slices.Contains(r.validated, ch) {
		return false
	}
	r.pending = append(r.pending, ch)
	return true
}

// Admit assigns alias to a pending channel and moves it to the validated set.
// The uniqueness check and the move happen in one critical section.
func (r *Registry) Admit(ch *conn.Channel, alias string) error {
	return r.AdmitWithGreeting(ch, alias, "")
}

// AdmitWithGreeting is Admit that also sends greeting to ch, when non-empty,
// before ch joins the validated set. No broadcast can reach ch ahead of it.
// A failed send does not prevent admission; the listener notices the broken
// transport on its next poll.
func (r *Registry) AdmitWithGreeting(ch *conn.Channel, alias, greeting string) error {
	if alias == "" {
		return ErrEmptyAlias
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.Index(r.pending, ch)
	if idx < 0 {
		return ErrNotPending
	}
	for _, v := range r.validated {
		if strings.EqualFold(v.Alias(), alias) {
			return ErrAliasTaken
		}
	}

	ch.SetAlias(alias)
	if greeting != "" {
		_ = ch.Send(greeting)
	}
	r.pending = slices.Delete(r.pending, idx, idx+1)
	r.validated = append(r.validated, ch)
	return nil
}

// Remove deletes ch from whichever set holds it. Returns true if removed.
func (r *Registry) Remove(ch *conn.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx := slices.Index(r.validated, ch); idx >= 0 {
		r.validated = slices.Delete(r.validated, idx, idx+1)
		return true
	}
	if idx := slices.Index(r.pending, ch); idx >= 0 {
		r.pending = slices.Delete(r.pending, idx, idx+1)
		return true
	}
	return false
}

// IsValidated reports whether ch is in the validated set.
func (r *Registry) IsValidated(ch *conn.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.validated, ch)
}

// IsPending reports whether ch is waiting for admission.
func (r *Registry) IsPending(ch *conn.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.pending, ch)
}

// Pending returns a snapshot of the pending set.
func (r *Registry) Pending() []*conn.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.pending)
}

// Channels returns a snapshot of the validated set in admission order.
func (r *Registry) Channels() []*conn.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.validated)
}

// Aliases returns validated aliases in admission order.
func (r *Registry) Aliases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	aliases := make([]string, 0, len(r.validated))
	for _, ch := range r.validated {
		aliases = append(aliases, ch.Alias())
	}
	return aliases
}

// Counts returns the sizes of the pending and validated sets.
func (r *Registry) Counts() (pending, validated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending), len(r.validated)
}

// Broadcast sends text to every validated channel except except. The
// recipient list is fixed when the call starts; a failed send is handed to
// onFail and delivery continues. Returns the number of successful sends.
func (r *Registry) Broadcast(except *conn.Channel, text string, onFail func(*conn.Channel, error)) int {
	recipients := r.Channels()

	delivered := 0
	for _, ch := range recipients {
		if ch == except {
			continue
		}
		if err := ch.Send(text); err != nil {
			if onFail != nil {
				onFail(ch, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

// Drain empties both sets and returns what they held.
func (r *Registry) Drain() (pending, validated []*conn.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending, validated = r.pending, r.validated
	r.pending, r.validated = nil, nil
	return pending, validated
}
