// Package queue carries payment confirmation jobs from the HTTP layer to the
// background workers, either over RabbitMQ or through an in-process channel.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PaymentQueue is the default durable queue for payment jobs.
const PaymentQueue = "ticket.payment"

// PaymentRequested asks a worker to confirm payment of a ticket with the
// given token. Workers re-read the ticket by ID; nothing else is trusted.
type PaymentRequested struct {
	TicketID     uint64    `json:"ticket_id"`
	PaymentToken string    `json:"payment_token"`
	RequestedAt  time.Time `json:"requested_at"`
}

// Handler processes one job. A non-nil error asks the transport to deliver
// the job again.
type Handler func(ctx context.Context, job PaymentRequested) error

// Dispatcher hands a job to the workers without waiting for it to run.
type Dispatcher interface {
	Dispatch(ctx context.Context, job PaymentRequested) error
}

var ErrMalformedJob = errors.New("malformed payment job")

// decodeJob parses a message body. Bodies that are not JSON objects are
// malformed; missing fields are left for the handler to judge.
func decodeJob(body []byte) (PaymentRequested, error) {
	var job PaymentRequested
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return job, nil
}
