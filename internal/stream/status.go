package stream

import (
	"sort"
	"sync"
	"time"
)

// MaxFailuresPerConsumer bounds the failure log kept per consumer.
const MaxFailuresPerConsumer = 100

// Status is a snapshot of one domain consumer.
type Status struct {
	Domain       string    `json:"domain"`
	Stream       string    `json:"stream"`
	Running      bool      `json:"running"`
	StartedAt    time.Time `json:"started_at"`
	LastMessage  string    `json:"last_message,omitempty"`
	LastResult   string    `json:"last_result,omitempty"`
	LastHandled  time.Time `json:"last_handled"`
	Acked        int64     `json:"acked"`
	Failed       int64     `json:"failed"`
	DeadLettered int64     `json:"dead_lettered"`
	Parked       int64     `json:"parked"`
}

// Failure is one message left pending, dead-lettered or parked.
type Failure struct {
	Time      time.Time `json:"time"`
	MessageID string    `json:"message_id"`
	Error     string    `json:"error"`
}

type tracker struct {
	mu       sync.RWMutex
	status   Status
	failures []Failure
}

func (t *tracker) started(stream string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Stream = stream
	t.status.Running = true
	t.status.StartedAt = time.Now()
}

func (t *tracker) stopped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = false
}

func (t *tracker) record(messageID string, outcome outcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.LastMessage = messageID
	t.status.LastHandled = time.Now()
	t.status.LastResult = outcome.String()
	switch outcome {
	case outcomeAcked:
		t.status.Acked++
		return
	case outcomeDeadLettered:
		t.status.DeadLettered++
	case outcomeParked:
		t.status.Parked++
	default:
		t.status.Failed++
	}

	t.failures = append(t.failures, Failure{Time: t.status.LastHandled, MessageID: messageID, Error: err.Error()})
	if len(t.failures) > MaxFailuresPerConsumer {
		t.failures = t.failures[1:]
	}
}

// Monitor keeps the status of every consumer of the process.
type Monitor struct {
	consumers sync.Map
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) tracker(domain string) *tracker {
	t, _ := m.consumers.LoadOrStore(domain, &tracker{status: Status{Domain: domain}})
	return t.(*tracker)
}

// List returns the status of every consumer, sorted by domain.
func (m *Monitor) List() []Status {
	var list []Status
	m.consumers.Range(func(_, value any) bool {
		t := value.(*tracker)
		t.mu.RLock()
		list = append(list, t.status)
		t.mu.RUnlock()
		return true
	})
	sort.Slice(list, func(i, j int) bool {
		return list[i].Domain < list[j].Domain
	})
	return list
}

// Failures returns the recent failures of a domain consumer.
func (m *Monitor) Failures(domain string) ([]Failure, error) {
	t, ok := m.consumers.Load(domain)
	if !ok {
		return nil, ConsumerNotFoundError{Domain: domain}
	}
	tr := t.(*tracker)
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	cpy := make([]Failure, len(tr.failures))
	copy(cpy, tr.failures)
	return cpy, nil
}

type ConsumerNotFoundError struct {
	Domain string
}

func (e ConsumerNotFoundError) Error() string {
	return "no consumer for domain '" + e.Domain + "'"
}
