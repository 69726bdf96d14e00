package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messageboard/models"
)

// Producer and Consumer need a running broker; these tests cover the record
// format shared by both sides.

func TestEncodeDecode(t *testing.T) {
	msg := models.Message{
		ID:        "test-id",
		Text:      "test message",
		CreatedAt: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
	}

	km, err := encode(msg, "instance-a")
	require.NoError(t, err)
	assert.Equal(t, []byte("test-id"), km.Key)
	assert.Equal(t, msg.CreatedAt, km.Time)

	got, err := decode(km, "instance-b")
	require.NoError(t, err)
	assert.Equal(t, msg, got.Message)
	assert.True(t, got.Remote)
}

func TestDecodeMarksOwnRecordsLocal(t *testing.T) {
	km, err := encode(models.Message{ID: "m1", Text: "mine"}, "instance-a")
	require.NoError(t, err)

	got, err := decode(km, "instance-a")
	require.NoError(t, err)
	assert.False(t, got.Remote)
}

func TestDecodeWithoutOriginIsRemote(t *testing.T) {
	got, err := decode(kafka.Message{Key: []byte("k-1"), Value: []byte(`{"text":"hi"}`)}, "instance-a")
	require.NoError(t, err)
	assert.Equal(t, "k-1", got.Message.ID)
	assert.True(t, got.Remote)
}

func TestDecodeRejectsBadRecords(t *testing.T) {
	_, err := decode(kafka.Message{Value: []byte(`not json`)}, "a")
	assert.Error(t, err)

	_, err = decode(kafka.Message{Key: []byte("k"), Value: []byte(`{"text":""}`)}, "a")
	assert.Error(t, err)
}

func TestProducerPinsBoardPartition(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:9092"}, "board", "a")
	defer p.Close()
	require.IsType(t, partitionBalancer{}, p.w.Balancer)

	km, err := encode(models.Message{ID: "m1", Text: "hi"}, "a")
	require.NoError(t, err)
	for _, partitions := range [][]int{{0}, {0, 1, 2}, {2, 1, 0}, {0, 1, 2, 3, 4, 5, 6, 7}} {
		assert.Equal(t, boardPartition, p.w.Balancer.Balance(km, partitions...), "partitions %v", partitions)
	}
}

func TestConsumerReadsBoardPartition(t *testing.T) {
	c := NewConsumer([]string{"127.0.0.1:9092"}, "board", "a", nil)
	assert.Equal(t, boardPartition, c.r.Config().Partition)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestDeadLetterCarriesReason(t *testing.T) {
	m := deadLetter([]byte("k"), []byte("v"), "decode_failure")
	require.Len(t, m.Headers, 1)
	assert.Equal(t, "reason", m.Headers[0].Key)
	assert.Equal(t, "decode_failure", string(m.Headers[0].Value))
	assert.Equal(t, []byte("v"), m.Value)
}
