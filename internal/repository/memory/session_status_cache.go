package memory

import (
	"time"

	"github.com/patrickmn/go-cache"

	"tourbook-chat/pkg/supportchat"
)

// SessionStatusCache remembers the latest session status per user so status
// polls do not hit the repository every time. Writers invalidate it.
type SessionStatusCache struct {
	cache *cache.Cache
}

func NewSessionStatusCache(ttl time.Duration) *SessionStatusCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SessionStatusCache{
		cache: cache.New(ttl, 2*ttl),
	}
}

// Save stores status for userID. A nil status records that the user has no
// session yet.
func (c *SessionStatusCache) Save(userID string, status *supportchat.SessionStatus) {
	c.cache.Set(userID, status, cache.DefaultExpiration)
}

func (c *SessionStatusCache) Get(userID string) (*supportchat.SessionStatus, bool) {
	if x, found := c.cache.Get(userID); found {
		return x.(*supportchat.SessionStatus), true
	}
	return nil, false
}

func (c *SessionStatusCache) Delete(userID string) {
	c.cache.Delete(userID)
}
