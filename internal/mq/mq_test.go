package mq

import (
	"context"
	"testing"

	"github.com/jobhub/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithoutBackend(t *testing.T) {
	queue, err := Open(context.Background(), config.MQConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, queue)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)
}

func TestOpenRabbitMQRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: config.BackendRabbitMQ})
	assert.ErrorContains(t, err, "rabbitmq url is required")
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))

	attrs := headersToAttributes(amqp.Table{
		"event_type": "job.created",
		"raw":        []byte("bytes"),
		"count":      int32(3),
	})
	assert.Equal(t, map[string]string{
		"event_type": "job.created",
		"raw":        "bytes",
		"count":      "3",
	}, attrs)
}

func TestSubscriptionName(t *testing.T) {
	client := &PubSubClient{subscriptionSuffix: "-sub"}
	assert.Equal(t, "jobhub-events-sub", client.subscriptionName("jobhub-events"))

	client.subscriptionSuffix = ""
	assert.Equal(t, "jobhub-events", client.subscriptionName("jobhub-events"))
}
