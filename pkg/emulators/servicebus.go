// Package emulators provides in-memory stand-ins for external brokers so that
// pipeline components can be tested without network access.
package emulators

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/CKThompson00/workflow-automation/pkg/messagepipeline"
	"github.com/google/uuid"
)

// DefaultLockDuration matches the default lock duration of a Service Bus queue.
const DefaultLockDuration = time.Minute

// DeadLetteredMessage is a message moved to a queue's dead-letter sub-queue.
type DeadLetteredMessage struct {
	MessageID     string
	Body          []byte
	Reason        string
	Description   string
	DeliveryCount uint32
}

type emulatedMessage struct {
	id            string
	body          []byte
	properties    map[string]any
	enqueued      time.Time
	sequence      int64
	deliveryCount uint32
	lockToken     [16]byte
	lockedUntil   time.Time
}

type emulatedQueue struct {
	messages    []*emulatedMessage
	deadLetters []DeadLetteredMessage
}

// ServiceBusEmulator is an in-memory, peek-lock Service Bus namespace. It
// implements messagepipeline.Connector.
//
// Received messages stay in the queue, locked, until they are completed,
// abandoned or dead-lettered, or until the lock duration elapses on the
// emulator's clock. Advance moves that clock forward without sleeping.
type ServiceBusEmulator struct {
	mu           sync.Mutex
	queues       map[string]*emulatedQueue
	lockDuration time.Duration
	pollInterval time.Duration
	offset       time.Duration
	sequence     int64

	openErr     error
	failureCode azservicebus.Code
	completeErr error
	linkDelay   time.Duration
	linkCode    azservicebus.Code

	openScopes int
}

// Compile-time check that the emulator satisfies the connector contract.
var _ messagepipeline.Connector = (*ServiceBusEmulator)(nil)

// NewServiceBusEmulator creates an emulator with the given queues.
func NewServiceBusEmulator(queues ...string) *ServiceBusEmulator {
	e := &ServiceBusEmulator{
		queues:       make(map[string]*emulatedQueue),
		lockDuration: DefaultLockDuration,
		pollInterval: 5 * time.Millisecond,
	}
	for _, q := range queues {
		e.queues[q] = &emulatedQueue{}
	}
	return e
}

// CreateQueue adds an empty queue. Existing queues are left untouched.
func (e *ServiceBusEmulator) CreateQueue(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.queues[name]; !ok {
		e.queues[name] = &emulatedQueue{}
	}
}

// SetLockDuration changes the lock duration applied to subsequent receives.
func (e *ServiceBusEmulator) SetLockDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lockDuration = d
}

// Advance moves the emulator's clock forward, expiring locks as needed.
func (e *ServiceBusEmulator) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offset += d
}

// FailOpen makes every subsequent Open return err. A nil err clears it.
func (e *ServiceBusEmulator) FailOpen(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openErr = err
}

// FailWith makes every subsequent send and receive fail with a Service Bus
// error carrying code, e.g. azservicebus.CodeUnauthorizedAccess. An empty code
// clears the failure.
func (e *ServiceBusEmulator) FailWith(code azservicebus.Code) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failureCode = code
}

// FailLinkAfter makes every subsequent receive link attach block for delay,
// or until the caller's context ends, and then fail with a Service Bus error
// carrying code. It models a client library retrying against an unreachable
// namespace. An empty code clears the failure.
func (e *ServiceBusEmulator) FailLinkAfter(delay time.Duration, code azservicebus.Code) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.linkDelay = delay
	e.linkCode = code
}

// FailNextComplete makes the next CompleteMessage call return err.
func (e *ServiceBusEmulator) FailNextComplete(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completeErr = err
}

// Enqueue places a raw body on a queue, bypassing any sender. It is how tests
// inject bodies a well-behaved sender would never produce.
func (e *ServiceBusEmulator) Enqueue(queue string, body []byte, properties map[string]any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[queue]
	if !ok {
		return "", newServiceBusError(azservicebus.CodeNotFound, "queue %q does not exist", queue)
	}
	id := uuid.NewString()
	e.enqueueLocked(q, id, body, properties)
	return id, nil
}

// ActiveMessageCount returns the number of messages still in the queue,
// locked or not. Dead-lettered messages are not counted.
func (e *ServiceBusEmulator) ActiveMessageCount(queue string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[queue]
	if !ok {
		return 0
	}
	return len(q.messages)
}

// DeadLetters returns a copy of the queue's dead-letter sub-queue.
func (e *ServiceBusEmulator) DeadLetters(queue string) []DeadLetteredMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[queue]
	if !ok {
		return nil
	}
	out := make([]DeadLetteredMessage, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}

// OpenScopes returns the number of clients, senders and receivers that have
// been opened and not yet closed.
func (e *ServiceBusEmulator) OpenScopes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openScopes
}

// Open satisfies messagepipeline.Connector.
func (e *ServiceBusEmulator) Open(_ context.Context) (messagepipeline.BrokerClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.openScopes++
	return &emulatorClient{emu: e}, nil
}

func (e *ServiceBusEmulator) now() time.Time {
	return time.Now().Add(e.offset)
}

// injectedFailureLocked returns the configured send/receive failure, if any.
func (e *ServiceBusEmulator) injectedFailureLocked() error {
	if e.failureCode == "" {
		return nil
	}
	return newServiceBusError(e.failureCode, "injected failure")
}

func (e *ServiceBusEmulator) enqueueLocked(q *emulatedQueue, id string, body []byte, properties map[string]any) {
	e.sequence++
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	q.messages = append(q.messages, &emulatedMessage{
		id:         id,
		body:       bodyCopy,
		properties: properties,
		enqueued:   e.now(),
		sequence:   e.sequence,
	})
}

// findLockedLocked returns the index of the message holding lockToken with a live lock.
func (e *ServiceBusEmulator) findLockedLocked(queue string, lockToken [16]byte) (*emulatedQueue, int, error) {
	q, ok := e.queues[queue]
	if !ok {
		return nil, -1, newServiceBusError(azservicebus.CodeNotFound, "queue %q does not exist", queue)
	}
	now := e.now()
	for i, m := range q.messages {
		if m.lockToken == lockToken && now.Before(m.lockedUntil) {
			return q, i, nil
		}
	}
	return nil, -1, newServiceBusError(azservicebus.CodeLockLost, "lock for message is lost or expired")
}

func newServiceBusError(code azservicebus.Code, format string, args ...any) error {
	return fmt.Errorf("servicebus emulator: %s: %w", fmt.Sprintf(format, args...), &azservicebus.Error{Code: code})
}

// --- client ---

type emulatorClient struct {
	emu    *ServiceBusEmulator
	closed bool
}

func (c *emulatorClient) NewSender(queueName string) (messagepipeline.QueueSender, error) {
	c.emu.mu.Lock()
	defer c.emu.mu.Unlock()
	c.emu.openScopes++
	return &emulatorSender{emu: c.emu, queue: queueName}, nil
}

func (c *emulatorClient) NewReceiver(queueName string) (messagepipeline.QueueReceiver, error) {
	c.emu.mu.Lock()
	defer c.emu.mu.Unlock()
	c.emu.openScopes++
	return &emulatorReceiver{emu: c.emu, queue: queueName}, nil
}

func (c *emulatorClient) Close(_ context.Context) error {
	c.emu.mu.Lock()
	defer c.emu.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.emu.openScopes--
	}
	return nil
}

// --- sender ---

type emulatorSender struct {
	emu    *ServiceBusEmulator
	queue  string
	closed bool
}

func (s *emulatorSender) SendMessage(ctx context.Context, message *azservicebus.Message, _ *azservicebus.SendMessageOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.emu.mu.Lock()
	defer s.emu.mu.Unlock()
	if s.closed {
		return newServiceBusError(azservicebus.CodeConnectionLost, "sender is closed")
	}
	if err := s.emu.injectedFailureLocked(); err != nil {
		return err
	}
	q, ok := s.emu.queues[s.queue]
	if !ok {
		return newServiceBusError(azservicebus.CodeNotFound, "queue %q does not exist", s.queue)
	}
	id := uuid.NewString()
	if message.MessageID != nil && *message.MessageID != "" {
		id = *message.MessageID
	}
	s.emu.enqueueLocked(q, id, message.Body, message.ApplicationProperties)
	return nil
}

func (s *emulatorSender) Close(_ context.Context) error {
	s.emu.mu.Lock()
	defer s.emu.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.emu.openScopes--
	}
	return nil
}

// --- receiver ---

type emulatorReceiver struct {
	emu    *ServiceBusEmulator
	queue  string
	closed bool
}

// PeekMessages returns up to maxMessageCount unlocked messages without locking
// them or counting a delivery.
func (r *emulatorReceiver) PeekMessages(ctx context.Context, maxMessageCount int, _ *azservicebus.PeekMessagesOptions) ([]*azservicebus.ReceivedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.emu.mu.Lock()
	delay, code := r.emu.linkDelay, r.emu.linkCode
	r.emu.mu.Unlock()
	if code != "" {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		return nil, newServiceBusError(code, "link attach to %q failed", r.queue)
	}

	r.emu.mu.Lock()
	defer r.emu.mu.Unlock()
	if r.closed {
		return nil, newServiceBusError(azservicebus.CodeConnectionLost, "receiver is closed")
	}
	if err := r.emu.injectedFailureLocked(); err != nil {
		return nil, err
	}
	q, ok := r.emu.queues[r.queue]
	if !ok {
		return nil, newServiceBusError(azservicebus.CodeNotFound, "queue %q does not exist", r.queue)
	}

	now := r.emu.now()
	var out []*azservicebus.ReceivedMessage
	for _, m := range q.messages {
		if len(out) >= maxMessageCount {
			break
		}
		if now.Before(m.lockedUntil) {
			continue
		}
		out = append(out, toReceived(m))
	}
	return out, nil
}

// ReceiveMessages returns as soon as at least one message is available, or
// ctx's error once ctx ends with nothing available.
func (r *emulatorReceiver) ReceiveMessages(ctx context.Context, maxMessages int, _ *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error) {
	ticker := time.NewTicker(r.emu.pollInterval)
	defer ticker.Stop()
	for {
		received, err := r.tryReceive(maxMessages)
		if err != nil || len(received) > 0 {
			return received, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *emulatorReceiver) tryReceive(maxMessages int) ([]*azservicebus.ReceivedMessage, error) {
	r.emu.mu.Lock()
	defer r.emu.mu.Unlock()
	if r.closed {
		return nil, newServiceBusError(azservicebus.CodeConnectionLost, "receiver is closed")
	}
	if err := r.emu.injectedFailureLocked(); err != nil {
		return nil, err
	}
	q, ok := r.emu.queues[r.queue]
	if !ok {
		return nil, newServiceBusError(azservicebus.CodeNotFound, "queue %q does not exist", r.queue)
	}

	now := r.emu.now()
	var out []*azservicebus.ReceivedMessage
	for _, m := range q.messages {
		if len(out) >= maxMessages {
			break
		}
		if now.Before(m.lockedUntil) {
			continue
		}
		m.deliveryCount++
		m.lockToken = [16]byte(uuid.New())
		m.lockedUntil = now.Add(r.emu.lockDuration)
		out = append(out, toReceived(m))
	}
	return out, nil
}

// toReceived snapshots m as the client library would hand it to a caller.
func toReceived(m *emulatedMessage) *azservicebus.ReceivedMessage {
	enqueued := m.enqueued
	sequence := m.sequence
	body := make([]byte, len(m.body))
	copy(body, m.body)
	rm := &azservicebus.ReceivedMessage{
		MessageID:             m.id,
		Body:                  body,
		ApplicationProperties: m.properties,
		DeliveryCount:         m.deliveryCount,
		EnqueuedTime:          &enqueued,
		LockToken:             m.lockToken,
		SequenceNumber:        &sequence,
	}
	if !m.lockedUntil.IsZero() {
		lockedUntil := m.lockedUntil
		rm.LockedUntil = &lockedUntil
	}
	return rm
}

func (r *emulatorReceiver) CompleteMessage(_ context.Context, message *azservicebus.ReceivedMessage, _ *azservicebus.CompleteMessageOptions) error {
	r.emu.mu.Lock()
	defer r.emu.mu.Unlock()
	if err := r.emu.completeErr; err != nil {
		r.emu.completeErr = nil
		return err
	}
	q, i, err := r.emu.findLockedLocked(r.queue, message.LockToken)
	if err != nil {
		return err
	}
	q.messages = append(q.messages[:i], q.messages[i+1:]...)
	return nil
}

func (r *emulatorReceiver) AbandonMessage(_ context.Context, message *azservicebus.ReceivedMessage, _ *azservicebus.AbandonMessageOptions) error {
	r.emu.mu.Lock()
	defer r.emu.mu.Unlock()
	q, i, err := r.emu.findLockedLocked(r.queue, message.LockToken)
	if err != nil {
		return err
	}
	q.messages[i].lockedUntil = time.Time{}
	return nil
}

func (r *emulatorReceiver) DeadLetterMessage(_ context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.DeadLetterOptions) error {
	r.emu.mu.Lock()
	defer r.emu.mu.Unlock()
	q, i, err := r.emu.findLockedLocked(r.queue, message.LockToken)
	if err != nil {
		return err
	}
	m := q.messages[i]
	dl := DeadLetteredMessage{
		MessageID:     m.id,
		Body:          m.body,
		DeliveryCount: m.deliveryCount,
	}
	if options != nil {
		if options.Reason != nil {
			dl.Reason = *options.Reason
		}
		if options.ErrorDescription != nil {
			dl.Description = *options.ErrorDescription
		}
	}
	q.deadLetters = append(q.deadLetters, dl)
	q.messages = append(q.messages[:i], q.messages[i+1:]...)
	return nil
}

func (r *emulatorReceiver) Close(_ context.Context) error {
	r.emu.mu.Lock()
	defer r.emu.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.emu.openScopes--
	}
	return nil
}
