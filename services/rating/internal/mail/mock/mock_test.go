package mock

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

func TestTransport_SendLogs(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTransport(logger.NewWithWriter("rating-service", "info", &buf))

	err := tr.Send(context.Background(), &domain.NotificationMessage{
		ToRecipients: []domain.Recipient{{Address: "alice@x.com"}},
		Subject:      "Sprint Review was rated!",
	})
	require.NoError(t, err)

	assert.Equal(t, "mock", tr.Name())
	assert.Contains(t, buf.String(), "mock transport: mail sent")
	assert.Contains(t, buf.String(), "alice@x.com")
}

func TestTransport_SendCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTransport(logger.Discard()).Send(ctx, &domain.NotificationMessage{})
	assert.ErrorIs(t, err, context.Canceled)
}
