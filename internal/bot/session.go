package bot

import (
	"sync"

	"partner_bitrix/internal/partner"
)

type state int

const (
	stateNone state = iota
	statePhone
	stateCode
	stateAuthorized
	stateUserMenu
	stateConsent
	stateName
	stateUserPhone
)

// session is the per-chat form state. Updates arrive from multiple
// goroutines, so the map is guarded.
type session struct {
	state        state
	phone        string
	expectedCode string
	contactID    int64
	kind         partner.Kind
	percent      *float64
	partnerCode  string
	name         string
}

type sessionStore struct {
	mu sync.Mutex
	m  map[int64]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{m: make(map[int64]*session)}
}

func (s *sessionStore) get(chatID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[chatID]
	if !ok {
		sess = &session{}
		s.m[chatID] = sess
	}
	return sess
}

func (s *sessionStore) clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chatID)
}
