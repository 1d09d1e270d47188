package emulators_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/CKThompson00/workflow-automation/pkg/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queue = "emulated"

func openReceiver(t *testing.T, emu *emulators.ServiceBusEmulator) (context.Context, func(maxMessages int) []*azservicebus.ReceivedMessage, func(*azservicebus.ReceivedMessage) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	client, err := emu.Open(ctx)
	require.NoError(t, err)
	receiver, err := client.NewReceiver(queue)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = receiver.Close(context.Background())
		_ = client.Close(context.Background())
	})

	receive := func(maxMessages int) []*azservicebus.ReceivedMessage {
		rctx, rcancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer rcancel()
		msgs, err := receiver.ReceiveMessages(rctx, maxMessages, nil)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		require.NoError(t, err)
		return msgs
	}
	complete := func(m *azservicebus.ReceivedMessage) error {
		return receiver.CompleteMessage(ctx, m, nil)
	}
	return ctx, receive, complete
}

func TestServiceBusEmulator_PeekLock(t *testing.T) {
	t.Run("Locked message is hidden until the lock expires", func(t *testing.T) {
		// Arrange
		emu := emulators.NewServiceBusEmulator(queue)
		_, err := emu.Enqueue(queue, []byte(`{"id":"1"}`), nil)
		require.NoError(t, err)
		_, receive, _ := openReceiver(t, emu)

		// Act
		first := receive(10)
		hidden := receive(10)
		emu.Advance(emulators.DefaultLockDuration + time.Second)
		again := receive(10)

		// Assert
		require.Len(t, first, 1)
		assert.Equal(t, uint32(1), first[0].DeliveryCount)
		assert.Empty(t, hidden)
		require.Len(t, again, 1)
		assert.Equal(t, uint32(2), again[0].DeliveryCount)
		assert.NotEqual(t, first[0].LockToken, again[0].LockToken)
	})

	t.Run("Complete removes the message", func(t *testing.T) {
		emu := emulators.NewServiceBusEmulator(queue)
		_, err := emu.Enqueue(queue, []byte(`{}`), nil)
		require.NoError(t, err)
		_, receive, complete := openReceiver(t, emu)

		msgs := receive(10)
		require.Len(t, msgs, 1)
		require.NoError(t, complete(msgs[0]))

		assert.Zero(t, emu.ActiveMessageCount(queue))
	})

	t.Run("Complete with an expired lock fails with LockLost", func(t *testing.T) {
		emu := emulators.NewServiceBusEmulator(queue)
		emu.SetLockDuration(time.Second)
		_, err := emu.Enqueue(queue, []byte(`{}`), nil)
		require.NoError(t, err)
		_, receive, complete := openReceiver(t, emu)

		msgs := receive(10)
		require.Len(t, msgs, 1)
		emu.Advance(2 * time.Second)
		err = complete(msgs[0])

		var sbErr *azservicebus.Error
		require.ErrorAs(t, err, &sbErr)
		assert.Equal(t, azservicebus.CodeLockLost, sbErr.Code)
		assert.Equal(t, 1, emu.ActiveMessageCount(queue))
	})

	t.Run("Receive honours maxMessages", func(t *testing.T) {
		emu := emulators.NewServiceBusEmulator(queue)
		for i := 0; i < 5; i++ {
			_, err := emu.Enqueue(queue, []byte(`{}`), nil)
			require.NoError(t, err)
		}
		_, receive, _ := openReceiver(t, emu)

		assert.Len(t, receive(3), 3)
		assert.Len(t, receive(3), 2)
	})
}

func TestServiceBusEmulator_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown queue", func(t *testing.T) {
		emu := emulators.NewServiceBusEmulator()
		_, err := emu.Enqueue("missing", []byte(`{}`), nil)
		assert.Error(t, err)

		client, err := emu.Open(ctx)
		require.NoError(t, err)
		sender, err := client.NewSender("missing")
		require.NoError(t, err)

		err = sender.SendMessage(ctx, &azservicebus.Message{Body: []byte(`{}`)}, nil)

		var sbErr *azservicebus.Error
		require.ErrorAs(t, err, &sbErr)
		assert.Equal(t, azservicebus.CodeNotFound, sbErr.Code)
		require.NoError(t, sender.Close(ctx))
		require.NoError(t, client.Close(ctx))
		assert.Zero(t, emu.OpenScopes())
	})

	t.Run("FailOpen", func(t *testing.T) {
		emu := emulators.NewServiceBusEmulator(queue)
		openErr := errors.New("namespace unreachable")
		emu.FailOpen(openErr)

		_, err := emu.Open(ctx)
		assert.ErrorIs(t, err, openErr)

		emu.FailOpen(nil)
		client, err := emu.Open(ctx)
		require.NoError(t, err)
		require.NoError(t, client.Close(ctx))
	})

	t.Run("FailWith", func(t *testing.T) {
		emu := emulators.NewServiceBusEmulator(queue)
		emu.FailWith(azservicebus.CodeConnectionLost)
		client, err := emu.Open(ctx)
		require.NoError(t, err)
		sender, err := client.NewSender(queue)
		require.NoError(t, err)

		err = sender.SendMessage(ctx, &azservicebus.Message{Body: []byte(`{}`)}, nil)

		var sbErr *azservicebus.Error
		require.ErrorAs(t, err, &sbErr)
		assert.Equal(t, azservicebus.CodeConnectionLost, sbErr.Code)
		_ = sender.Close(ctx)
		_ = client.Close(ctx)
	})

	t.Run("Closing twice counts once", func(t *testing.T) {
		emu := emulators.NewServiceBusEmulator(queue)
		client, err := emu.Open(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, emu.OpenScopes())

		require.NoError(t, client.Close(ctx))
		require.NoError(t, client.Close(ctx))

		assert.Zero(t, emu.OpenScopes())
	})
}

func TestServiceBusEmulator_Peek(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	t.Run("Peek neither locks nor counts a delivery", func(t *testing.T) {
		// Arrange
		emu := emulators.NewServiceBusEmulator(queue)
		_, err := emu.Enqueue(queue, []byte(`{}`), nil)
		require.NoError(t, err)
		client, err := emu.Open(ctx)
		require.NoError(t, err)
		receiver, err := client.NewReceiver(queue)
		require.NoError(t, err)

		// Act
		peeked, err := receiver.PeekMessages(ctx, 1, nil)
		require.NoError(t, err)
		rctx, rcancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer rcancel()
		received, err := receiver.ReceiveMessages(rctx, 1, nil)

		// Assert
		require.NoError(t, err)
		require.Len(t, peeked, 1)
		assert.Zero(t, peeked[0].DeliveryCount)
		require.Len(t, received, 1)
		assert.Equal(t, uint32(1), received[0].DeliveryCount)
		require.NoError(t, receiver.Close(ctx))
		require.NoError(t, client.Close(ctx))
	})

	t.Run("FailLinkAfter fails the attach once the delay elapses", func(t *testing.T) {
		emu := emulators.NewServiceBusEmulator(queue)
		emu.FailLinkAfter(100*time.Millisecond, azservicebus.CodeConnectionLost)
		client, err := emu.Open(ctx)
		require.NoError(t, err)
		receiver, err := client.NewReceiver(queue)
		require.NoError(t, err)

		start := time.Now()
		_, err = receiver.PeekMessages(ctx, 1, nil)

		var sbErr *azservicebus.Error
		require.ErrorAs(t, err, &sbErr)
		assert.Equal(t, azservicebus.CodeConnectionLost, sbErr.Code)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
		_ = receiver.Close(ctx)
		_ = client.Close(ctx)
	})

	t.Run("FailLinkAfter honours the caller's context", func(t *testing.T) {
		emu := emulators.NewServiceBusEmulator(queue)
		emu.FailLinkAfter(time.Minute, azservicebus.CodeConnectionLost)
		client, err := emu.Open(ctx)
		require.NoError(t, err)
		receiver, err := client.NewReceiver(queue)
		require.NoError(t, err)

		pctx, pcancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer pcancel()
		_, err = receiver.PeekMessages(pctx, 1, nil)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		_ = receiver.Close(ctx)
		_ = client.Close(ctx)
	})
}
