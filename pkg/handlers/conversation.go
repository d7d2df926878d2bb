package handlers

import (
	"crypto/sha256"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/ddsprasad/data-sense-ai/pkg/services"
)

// SessionName is the name of the conversation cookie.
const SessionName = "dsa-conversation"

// sessionKeyConversationID holds the conversation id inside the cookie.
const sessionKeyConversationID = "conversation_id"

// DefaultConversationTTL is how long an idle conversation keeps its context.
const DefaultConversationTTL = 24 * time.Hour

// NewSessionStore creates the cookie store for conversation ids.
//
// The secret can be any passphrase; it is SHA-256 hashed into a 32-byte
// signing key. It must be stable across restarts and replicas or existing
// conversations lose their follow-up context.
func NewSessionStore(secret string, secure bool, maxAge time.Duration) *sessions.CookieStore {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	return store
}

// conversationID returns the id stored in the session, minting one when the
// session is new or carries a malformed value.
func conversationID(session *sessions.Session) string {
	if id, ok := session.Values[sessionKeyConversationID].(string); ok {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	id := uuid.NewString()
	session.Values[sessionKeyConversationID] = id
	return id
}

// ConversationStore keeps the latest succeeded PriorContext per conversation.
// Entries idle longer than the TTL are dropped.
type ConversationStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]conversationEntry
}

type conversationEntry struct {
	prior   *services.PriorContext
	touched time.Time
}

// NewConversationStore creates a store. ttl <= 0 uses DefaultConversationTTL.
func NewConversationStore(ttl time.Duration) *ConversationStore {
	return newConversationStore(ttl, time.Now)
}

func newConversationStore(ttl time.Duration, now func() time.Time) *ConversationStore {
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &ConversationStore{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]conversationEntry),
	}
}

// Get returns the conversation's prior context.
func (s *ConversationStore) Get(id string) (*services.PriorContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if s.now().Sub(entry.touched) > s.ttl {
		delete(s.entries, id)
		return nil, false
	}
	return entry.prior, true
}

// Put replaces the conversation's context. A nil prior is ignored so a
// failed follow-up does not erase the last good answer.
func (s *ConversationStore) Put(id string, prior *services.PriorContext) {
	if prior == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if now.Sub(e.touched) > s.ttl {
			delete(s.entries, k)
		}
	}
	s.entries[id] = conversationEntry{prior: prior, touched: now}
}

// Delete forgets a conversation.
func (s *ConversationStore) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of live conversations.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
