//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0", kafka.WithClusterID("storm-alert-test"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	require.NoError(t, cconn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// startMongo runs a MongoDB server and returns its connection string.
func startMongo(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := mongodb.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start mongo container")

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	return uri
}

func polygonFeature(id string, now time.Time, expiresIn time.Duration) domain.Feature {
	ts := now.Add(-5 * time.Minute).Format(time.RFC3339)
	return domain.Feature{
		ID: id,
		Geometry: &domain.FeatureGeometry{
			Type:        "Polygon",
			Coordinates: []byte(`[[[-97.9,30.1],[-97.5,30.1],[-97.5,30.4],[-97.9,30.4],[-97.9,30.1]]]`),
		},
		Properties: domain.FeatureProperties{
			Event:       "Tornado Warning",
			MessageType: "Alert",
			Severity:    "Extreme",
			AreaDesc:    "Travis, TX",
			Headline:    "Tornado Warning issued for Travis County",
			Description: "At 1:05 PM CDT, a confirmed tornado was located\nnear Austin.",
			Sent:        ts,
			Effective:   ts,
			Onset:       ts,
			Expires:     now.Add(expiresIn).Format(time.RFC3339),
		},
	}
}
