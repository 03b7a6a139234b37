package booking

// CreatedEvent is the payload of booking.appointment.created.v1.
type CreatedEvent struct {
	AppointmentID    string `json:"appointment_id"`
	ClientName       string `json:"client_name"`
	ClientEmail      string `json:"client_email"`
	ClientPhone      string `json:"client_phone"`
	ServiceID        string `json:"service_id"`
	ServiceName      string `json:"service_name"`
	AppointmentAt    string `json:"appointment_at"`
	DurationMinutes  int    `json:"duration_minutes"`
	AmountCents      int64  `json:"amount_cents"`
	Currency         string `json:"currency"`
	PaymentReference string `json:"payment_reference"`
}

// ConflictedEvent is the payload of booking.appointment.conflicted.v1, raised
// when a paid slot was already taken. It needs manual follow-up (refund or
// reschedule).
type ConflictedEvent struct {
	PaymentReference string   `json:"payment_reference"`
	ClientName       string   `json:"client_name"`
	ClientEmail      string   `json:"client_email"`
	ClientPhone      string   `json:"client_phone"`
	ServiceName      string   `json:"service_name"`
	RequestedAt      string   `json:"requested_at"`
	AmountCents      int64    `json:"amount_cents"`
	Currency         string   `json:"currency"`
	ConflictingIDs   []string `json:"conflicting_ids"`
}

// StatusChangedEvent is the payload of booking.appointment.status_changed.v1.
type StatusChangedEvent struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	AppointmentAt string `json:"appointment_at"`
	ChangedBy     string `json:"changed_by"`
	ChangedAt     string `json:"changed_at"`
}
