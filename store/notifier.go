package store

import (
	"sync"

	"quizdeck/models"
)

type responseKey struct {
	sessionID  uint
	questionID uint
}

// notifier fans full snapshots out to in-process subscribers. Channels
// are buffered; a slow subscriber has its stale snapshot dropped and
// replaced rather than blocking the writer.
type notifier struct {
	mu           sync.Mutex
	sessions     map[uint]map[chan models.QuizSession]struct{}
	participants map[uint]map[chan []models.Participant]struct{}
	responses    map[responseKey]map[chan []models.QuestionResponse]struct{}
}

func newNotifier() *notifier {
	return &notifier{
		sessions:     make(map[uint]map[chan models.QuizSession]struct{}),
		participants: make(map[uint]map[chan []models.Participant]struct{}),
		responses:    make(map[responseKey]map[chan []models.QuestionResponse]struct{}),
	}
}

func (n *notifier) subscribeSession(sessionID uint) (<-chan models.QuizSession, func()) {
	ch := make(chan models.QuizSession, 8)
	n.mu.Lock()
	subs, ok := n.sessions[sessionID]
	if !ok {
		subs = make(map[chan models.QuizSession]struct{})
		n.sessions[sessionID] = subs
	}
	subs[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if subs, ok := n.sessions[sessionID]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(n.sessions, sessionID)
			}
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

func (n *notifier) subscribeParticipants(sessionID uint) (<-chan []models.Participant, func()) {
	ch := make(chan []models.Participant, 8)
	n.mu.Lock()
	subs, ok := n.participants[sessionID]
	if !ok {
		subs = make(map[chan []models.Participant]struct{})
		n.participants[sessionID] = subs
	}
	subs[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if subs, ok := n.participants[sessionID]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(n.participants, sessionID)
			}
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

func (n *notifier) subscribeResponses(sessionID, questionID uint) (<-chan []models.QuestionResponse, func()) {
	key := responseKey{sessionID, questionID}
	ch := make(chan []models.QuestionResponse, 8)
	n.mu.Lock()
	subs, ok := n.responses[key]
	if !ok {
		subs = make(map[chan []models.QuestionResponse]struct{})
		n.responses[key] = subs
	}
	subs[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if subs, ok := n.responses[key]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(n.responses, key)
			}
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

func (n *notifier) publishSession(snapshot models.QuizSession) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.sessions[snapshot.ID] {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

func (n *notifier) publishParticipants(sessionID uint, snapshot []models.Participant) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.participants[sessionID] {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

func (n *notifier) publishResponses(sessionID, questionID uint, snapshot []models.QuestionResponse) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.responses[responseKey{sessionID, questionID}] {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
