package events

import "time"

// DomainEvent is a fact an aggregate emits when its state changes.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder is embedded by aggregates to buffer events until the unit of work persists them.
type EventRecorder struct {
	pending []DomainEvent
}

func (r *EventRecorder) Record(event DomainEvent) {
	if event == nil {
		return
	}
	r.pending = append(r.pending, event)
}

func (r *EventRecorder) PendingEvents() []DomainEvent {
	out := make([]DomainEvent, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *EventRecorder) ClearEvents() {
	r.pending = nil
}

// PullEvents returns the buffered events and clears the buffer.
func (r *EventRecorder) PullEvents() []DomainEvent {
	out := r.PendingEvents()
	r.ClearEvents()
	return out
}

// Base implements DomainEvent; concrete events embed it and add payload fields.
type Base struct {
	Name      string    `json:"-"`
	Aggregate string    `json:"aggregate_id"`
	Time      time.Time `json:"occurred_at"`
}

func NewBase(name, aggregate string, at time.Time) Base {
	return Base{Name: name, Aggregate: aggregate, Time: at.UTC()}
}

func (e Base) EventName() string {
	return e.Name
}

func (e Base) AggregateID() string {
	return e.Aggregate
}

func (e Base) OccurredAt() time.Time {
	return e.Time
}
