package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event type).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	TopicAppointmentCreated    = "booking.appointment.created.v1"
	TopicAppointmentConflicted = "booking.appointment.conflicted.v1"
	TopicAppointmentStatus     = "booking.appointment.status_changed.v1"
)
