package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	event := TransactionEvent{
		Type:          TypeTransactionCreated,
		TenantID:      "tenant-a",
		TransactionID: "tx-1",
		Amount:        decimal.RequireFromString("10.50"),
		Currency:      "BRL",
		Entries: []EntryLine{
			{AccountID: "acc-1", Type: "debit", Amount: decimal.RequireFromString("10.50")},
			{AccountID: "acc-2", Type: "credit", Amount: decimal.RequireFromString("10.50")},
		},
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("writes keyed message", func(t *testing.T) {
		w := &fakeWriter{}
		p := &KafkaPublisher{writer: w}

		require.NoError(t, p.Publish(context.Background(), event))
		require.Len(t, w.messages, 1)

		msg := w.messages[0]
		assert.Equal(t, "tenant-a", string(msg.Key))
		assert.Equal(t, TypeTransactionCreated, string(msg.Headers[0].Value))

		var decoded TransactionEvent
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, "tx-1", decoded.TransactionID)
		assert.True(t, decoded.Amount.Equal(event.Amount))
		assert.Len(t, decoded.Entries, 2)
	})

	t.Run("propagates writer error", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("broker down")}
		p := &KafkaPublisher{writer: w}

		assert.EqualError(t, p.Publish(context.Background(), event), "broker down")
	})

	t.Run("close", func(t *testing.T) {
		w := &fakeWriter{}
		p := &KafkaPublisher{writer: w}
		require.NoError(t, p.Close())
		assert.True(t, w.closed)
	})
}
