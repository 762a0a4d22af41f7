package router

import (
	"sync"
	"time"
)

type convStep uint8

const (
	stepFirstName convStep = iota + 1
	stepSurname
	stepSurnameOnly
)

func (s convStep) String() string {
	switch s {
	case stepFirstName:
		return "first_name"
	case stepSurname:
		return "surname"
	case stepSurnameOnly:
		return "surname_only"
	default:
		return "none"
	}
}

// convState is the pending step of a /schedule lookup in one chat.
type convState struct {
	step  convStep
	first string
	at    time.Time
}

// conversations tracks at most one pending step per chat. Steps expire after ttl.
type conversations struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[int64]convState
}

func newConversations(ttl time.Duration, now func() time.Time) *conversations {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &conversations{ttl: ttl, now: now, m: map[int64]convState{}}
}

func (c *conversations) put(chat int64, st convState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st.at = c.now()
	c.m[chat] = st
	c.gcLocked()
}

// take removes and returns the pending step for chat.
func (c *conversations) take(chat int64) (convState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.m[chat]
	if !ok {
		return convState{}, false
	}
	delete(c.m, chat)
	if c.now().Sub(st.at) > c.ttl {
		return convState{}, false
	}
	return st, true
}

func (c *conversations) clear(chat int64) {
	c.mu.Lock()
	delete(c.m, chat)
	c.mu.Unlock()
}

func (c *conversations) gcLocked() {
	now := c.now()
	for k, st := range c.m {
		if now.Sub(st.at) > c.ttl {
			delete(c.m, k)
		}
	}
}
