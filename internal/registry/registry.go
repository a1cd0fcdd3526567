// Package registry tracks which user profile belongs to which live connection.
package registry

import (
	"math/rand/v2"
	"sync"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
)

// Palette is the fixed set of display colors handed out to collaborators.
var Palette = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7", "#DDA0DD", "#98D8C8"}

// Registry maps connection ids to user profiles. All operations are O(1)
// and guarded by a single lock.
type Registry struct {
	mu       sync.RWMutex
	profiles map[domain.ConnectionID]domain.UserProfile
	pick     func() string
}

func New() *Registry {
	return &Registry{
		profiles: make(map[domain.ConnectionID]domain.UserProfile),
		pick:     randomColor,
	}
}

func randomColor() string {
	return Palette[rand.IntN(len(Palette))]
}

// Register creates the profile for id, replacing any profile registered earlier
// on the same connection.
func (r *Registry) Register(id domain.ConnectionID, username string) domain.UserProfile {
	profile := domain.UserProfile{ID: id, Username: username, Color: r.pick()}

	r.mu.Lock()
	r.profiles[id] = profile
	r.mu.Unlock()

	return profile
}

func (r *Registry) Lookup(id domain.ConnectionID) (domain.UserProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[id]
	return profile, ok
}

// Remove deletes the profile for id. Removing an unknown id is a no-op that reports false.
func (r *Registry) Remove(id domain.ConnectionID) (domain.UserProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[id]
	if ok {
		delete(r.profiles, id)
	}
	return profile, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}
