package writeback

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/nickflorez-ai/arla-engine/internal/queuebuilder"
)

func TestNewProducer_NoBrokersFails(t *testing.T) {
	_, err := NewProducer(Config{}, nil)
	require.Error(t, err)
}

func newFakeCluster(t *testing.T) (*kfake.Cluster, []string) {
	t.Helper()
	cluster, err := kfake.NewCluster(kfake.NumBrokers(1))
	require.NoError(t, err)
	t.Cleanup(cluster.Close)
	return cluster, cluster.ListenAddrs()
}

func TestProducer_PublishRoundTrips(t *testing.T) {
	cluster, addrs := newFakeCluster(t)
	_ = cluster

	client, err := kgo.NewClient(kgo.SeedBrokers(addrs...))
	require.NoError(t, err)
	defer client.Close()

	p := NewProducerFromClient(client, "arla-test-writeback", nil)

	confidence := 0.92
	record := queuebuilder.WriteRecord{
		ProposalPid: "prop-1",
		QuestionID:  "citizenship",
		Delta:       map[string]any{"citizenship_type": "US_CITIZEN"},
		Timestamp:   time.Now().UTC(),
		Confidence:  &confidence,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Publish(ctx, record))

	consumeClient, err := kgo.NewClient(
		kgo.SeedBrokers(addrs...),
		kgo.ConsumeTopics("arla-test-writeback"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumeClient.Close()

	fetches := consumeClient.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	var got queuebuilder.WriteRecord
	iter := fetches.RecordIter()
	require.False(t, iter.Done())
	rec := iter.Next()
	require.NoError(t, json.Unmarshal(rec.Value, &got))
	assert.Equal(t, "prop-1", got.ProposalPid)
	assert.Equal(t, "citizenship", got.QuestionID)
	assert.Equal(t, "US_CITIZEN", got.Delta["citizenship_type"])
}
