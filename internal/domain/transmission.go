package domain

import "time"

// TransmissionStatus is the outcome of one delivery attempt.
type TransmissionStatus string

const (
	TransmissionSent    TransmissionStatus = "SENT"
	TransmissionFailed  TransmissionStatus = "FAILED"
	TransmissionPending TransmissionStatus = "PENDING"
)

// SignalTransmission records one attempt to deliver a signal through one
// channel. Rows are immutable; a retry appends a new row with a higher
// Attempt number.
type SignalTransmission struct {
	ID          string             `json:"id"`
	SignalID    string             `json:"signal_id"`
	Channel     string             `json:"channel"`
	Destination string             `json:"destination,omitempty"`
	Status      TransmissionStatus `json:"status"`
	Response    string             `json:"response,omitempty"`
	Attempt     int                `json:"attempt"`
	SentAt      time.Time          `json:"sent_at"`
}

// DeliveryOutcome is the per-channel result of one dispatch.
type DeliveryOutcome struct {
	Channel     string             `json:"channel"`
	Status      TransmissionStatus `json:"status"`
	Destination string             `json:"destination,omitempty"`
	Response    string             `json:"response,omitempty"`
	Attempts    int                `json:"attempts"`
}
