//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	contracts "hangar/contracts/events"
	"hangar/internal/events"
	"hangar/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	broker string
}

func TestKafkaPublisherSuite(t *testing.T) {
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
}

func (s *KafkaPublisherSuite) consume(topic string, want int) []contracts.Event {
	s.T().Helper()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	deadline := time.Now().Add(15 * time.Second)
	var got []contracts.Event
	for len(got) < want && time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		fetches := client.PollFetches(ctx)
		cancel()
		fetches.EachRecord(func(r *kgo.Record) {
			var e contracts.Event
			s.Require().NoError(json.Unmarshal(r.Value, &e))
			got = append(got, e)
		})
	}
	s.Require().Len(got, want, "expected %d events on %s", want, topic)
	return got
}

func (s *KafkaPublisherSuite) TestPublishRoundTrip() {
	ctx := context.Background()
	topic := "hangar.provisioning.roundtrip"

	pub, err := events.NewKafka(ctx, []string{s.broker}, topic)
	s.Require().NoError(err)
	defer pub.Close()

	sent := contracts.Event{
		Type:     contracts.TypeAllocationPlaced,
		Domain:   "wing3.example.com",
		Category: "opus",
		SiteID:   "opus-site-2",
		At:       time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(pub.Publish(ctx, sent))

	got := s.consume(topic, 1)
	s.Equal(sent.Type, got[0].Type)
	s.Equal(sent.Domain, got[0].Domain)
	s.Equal(sent.SiteID, got[0].SiteID)
	s.True(sent.At.Equal(got[0].At))
}

func (s *KafkaPublisherSuite) TestDomainKeyedOrdering() {
	ctx := context.Background()
	topic := "hangar.provisioning.ordering"

	pub, err := events.NewKafka(ctx, []string{s.broker}, topic)
	s.Require().NoError(err)
	defer pub.Close()

	for _, eventType := range []string{
		contracts.TypeAllocationPlaced,
		contracts.TypeDomainProvisioned,
	} {
		s.Require().NoError(pub.Publish(ctx, contracts.Event{
			Type:   eventType,
			Domain: "ordered.example.com",
		}))
	}

	got := s.consume(topic, 2)
	s.Equal(contracts.TypeAllocationPlaced, got[0].Type)
	s.Equal(contracts.TypeDomainProvisioned, got[1].Type)
}

func (s *KafkaPublisherSuite) TestNewKafkaValidation() {
	ctx := context.Background()

	_, err := events.NewKafka(ctx, nil, "topic")
	s.Error(err)

	_, err = events.NewKafka(ctx, []string{s.broker}, "")
	s.Error(err)
}

func TestNewKafkaUnreachableBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a dead broker")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := events.NewKafka(ctx, []string{"127.0.0.1:1"}, "hangar.provisioning")
	require.Error(t, err)
}
