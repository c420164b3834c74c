package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

type sender string

const (
	senderUser      sender = "user"
	senderAssistant sender = "assistant"
)

var errEmptyMessage = errors.New("message text is empty")

// chatMessage is immutable once appended. Confidence and ResponseSec are only
// set on genuine answers; error notices carry IsError instead.
type chatMessage struct {
	ID          string
	Text        string
	Sender      sender
	Timestamp   string
	Confidence  *float64
	ResponseSec *float64
	ContextUsed string
	IsError     bool
}

// session holds the transcript plus the two shared flags the UI reads. The
// store is append-only: no update or delete exists. bubbletea runs commands on
// goroutines, so everything is guarded by one mutex.
type session struct {
	mu        sync.Mutex
	nextID    uint64
	revision  uint64
	messages  []chatMessage
	connected bool
	loading   bool
}

func newSession() *session {
	return &session{}
}

// append stamps the message with a monotonic id and capture time and adds it
// to the end of the transcript.
func (s *session) append(msg chatMessage) (chatMessage, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return chatMessage{}, errEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg.ID = fmt.Sprintf("msg-%d", s.nextID)
	msg.Timestamp = time.Now().Format("15:04:05")
	s.messages = append(s.messages, msg)
	s.revision++
	return msg, nil
}

// all returns the transcript in insertion order. The slice is a copy; callers
// cannot mutate the store through it.
func (s *session) all() []chatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// rev increments on every append; the UI re-renders when it changes.
func (s *session) rev() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

func (s *session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *session) setConnected(value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = value
}

func (s *session) isLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// beginSubmit claims the single in-flight slot. It reports false when another
// exchange is already pending.
func (s *session) beginSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return false
	}
	s.loading = true
	return true
}

func (s *session) endSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
}
