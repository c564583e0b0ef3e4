//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"sabha/internal/platform/config"
	"sabha/pkg/testutil/containers"
)

func TestKafkaSinkPublishesEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := config.KafkaConfig{
		Brokers:    rp.Brokers,
		AuditTopic: "sabha.audit.events.test",
	}

	sink, err := NewKafkaSink(ctx, cfg)
	require.NoError(t, err)
	defer sink.Close()

	electionID := uuid.New()
	event := Event{
		Category:   CategoryCompliance,
		Timestamp:  time.Now().UTC().Truncate(time.Second),
		MemberID:   uuid.New(),
		ElectionID: electionID,
		Action:     string(EventVoteSubmitted),
	}
	require.NoError(t, sink.Publish(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.AuditTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, electionID.String(), string(records[0].Key), "events are keyed by election")

	var got Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, event.Action, got.Action)
	assert.Equal(t, event.ElectionID, got.ElectionID)
	assert.Equal(t, event.MemberID, got.MemberID)
}

// Creating the sink twice must not fail on the already-existing topic.
func TestKafkaSinkTopicAlreadyExists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := config.KafkaConfig{Brokers: rp.Brokers, AuditTopic: "sabha.audit.events.test"}

	first, err := NewKafkaSink(ctx, cfg)
	require.NoError(t, err)
	first.Close()

	second, err := NewKafkaSink(ctx, cfg)
	require.NoError(t, err)
	second.Close()
}
