package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/half-order/internal/core/domain"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.subject = subj
	c.data = data
	return c.err
}

func TestNATSPublisher_PublishesOnRestaurantSubject(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "restaurant")

	err := p.Publish(context.Background(), domain.Event{
		Type:         domain.EventSessionCancelled,
		RestaurantID: 9,
		Data:         map[string]any{"session_id": "s-9"},
	})
	require.NoError(t, err)

	assert.Equal(t, "restaurant.9.events", conn.subject)
	var got domain.Event
	require.NoError(t, json.Unmarshal(conn.data, &got))
	assert.Equal(t, domain.EventSessionCancelled, got.Type)
	assert.Equal(t, "s-9", got.Data["session_id"])
}

func TestNATSPublisher_WrapsError(t *testing.T) {
	sentinel := errors.New("connection closed")
	p := NewNATSPublisher(&fakeConn{err: sentinel}, "restaurant")

	err := p.Publish(context.Background(), domain.Event{RestaurantID: 1})
	assert.ErrorIs(t, err, sentinel)
}
