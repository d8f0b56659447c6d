package kafka

import (
	"Atelier/internal/chat"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func canalRow(id, threadID, senderID, isRead string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"thread_id":  threadID,
		"sender_id":  senderID,
		"content":    "hello",
		"is_read":    isRead,
		"created_at": "2024-03-01 10:00:00.250",
	}
}

func TestRowToMessage(t *testing.T) {
	h := NewMessagesHandler(nil, time.UTC)

	m, err := h.RowToMessage(canalRow("501", "42", "9", "1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(501), m.ID)
	assert.Equal(t, uint64(42), m.ThreadID)
	assert.Equal(t, uint64(9), m.SenderID)
	assert.True(t, m.IsRead)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 250_000_000, time.UTC), m.CreatedAt)

	_, err = h.RowToMessage(map[string]interface{}{"id": "1", "created_at": "2024-03-01 10:00:00"})
	assert.Error(t, err, "thread_id is required")

	bad := canalRow("1", "2", "3", "0")
	bad["created_at"] = "yesterday"
	_, err = h.RowToMessage(bad)
	assert.Error(t, err)
}

func TestEvents(t *testing.T) {
	h := NewMessagesHandler(nil, time.UTC)

	t.Run("insert", func(t *testing.T) {
		evs := h.Events(&CanalMessage{
			Type: INSERT,
			Data: []map[string]interface{}{canalRow("1", "42", "7", "0"), canalRow("2", "42", "9", "0")},
		})
		require.Len(t, evs, 2)
		assert.Equal(t, chat.EventInserted, evs[0].Type)
		assert.Equal(t, uint64(2), evs[1].Message.ID)
	})

	t.Run("update only for read flips", func(t *testing.T) {
		evs := h.Events(&CanalMessage{
			Type: UPDATE,
			Data: []map[string]interface{}{canalRow("1", "42", "7", "1"), canalRow("2", "42", "7", "0")},
			Old:  []map[string]interface{}{{"is_read": "0"}, {"content": "typo"}},
		})
		require.Len(t, evs, 1)
		assert.Equal(t, chat.EventUpdated, evs[0].Type)
		assert.True(t, evs[0].Message.IsRead)
	})

	t.Run("delete ignored", func(t *testing.T) {
		assert.Empty(t, h.Events(&CanalMessage{Type: DELETE, Data: []map[string]interface{}{canalRow("1", "42", "7", "0")}}))
	})

	t.Run("malformed row skipped", func(t *testing.T) {
		evs := h.Events(&CanalMessage{
			Type: INSERT,
			Data: []map[string]interface{}{{"id": "x"}, canalRow("3", "42", "7", "0")},
		})
		require.Len(t, evs, 1)
		assert.Equal(t, uint64(3), evs[0].Message.ID)
	})
}

func TestLogic(t *testing.T) {
	var got []chat.Event
	publishErr := error(nil)
	h := NewMessagesHandler(func(_ context.Context, ev chat.Event) error {
		if publishErr != nil {
			return publishErr
		}
		got = append(got, ev)
		return nil
	}, time.UTC)

	insert := []byte(`{"table":"chat_messages","type":"INSERT","isDdl":false,"data":[{"id":"10","thread_id":"42","sender_id":"7","content":"hi","is_read":"0","created_at":"2024-03-01 10:00:00"}]}`)
	require.NoError(t, h.logic(context.Background(), &sarama.ConsumerMessage{Value: insert}))
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Message.Content)

	other := []byte(`{"table":"chat_threads","type":"INSERT","data":[{"id":"1"}]}`)
	assert.NoError(t, h.logic(context.Background(), &sarama.ConsumerMessage{Value: other}))
	assert.NoError(t, h.logic(context.Background(), &sarama.ConsumerMessage{Value: []byte("{not json")}))
	assert.Len(t, got, 1)

	publishErr = errors.New("redis down")
	assert.Error(t, h.logic(context.Background(), &sarama.ConsumerMessage{Value: insert}), "publish failures are retried")
}

func TestStrConversions(t *testing.T) {
	assert.Equal(t, uint64(12), StrToUint64("12"))
	assert.Equal(t, uint64(12), StrToUint64(float64(12)))
	assert.Equal(t, uint64(0), StrToUint64(nil))
	assert.Equal(t, uint64(0), StrToUint64("-1"))
	assert.True(t, StrToBool("1"))
	assert.True(t, StrToBool("true"))
	assert.False(t, StrToBool("0"))
	assert.False(t, StrToBool(nil))
}
