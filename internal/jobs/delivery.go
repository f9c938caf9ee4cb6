package jobs

import "context"

// Delivery is a dequeued message plus the queue's acknowledgement hooks.
type Delivery struct {
	Message Message
	ack     func(context.Context) error
	nack    func(context.Context) error

	// Attributes carries transport metadata such as trace context.
	Attributes map[string]string
}

// NewDelivery builds a Delivery. Nil hooks are treated as no-ops.
func NewDelivery(msg Message, ack, nack func(context.Context) error) Delivery {
	return Delivery{Message: msg, ack: ack, nack: nack}
}

// Ack confirms the message was handled.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Nack returns the message to the queue for redelivery.
func (d Delivery) Nack(ctx context.Context) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx)
}
