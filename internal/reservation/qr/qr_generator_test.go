package qr

import (
	"bytes"
	"testing"

	"ms-questbooking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNG_ProducesImage(t *testing.T) {
	g, err := NewGenerator("secret")
	require.NoError(t, err)
	png, err := g.PNG(models.Reservation{ReservationID: "r1", QuestID: "q1", UserID: "u1", Quantity: 2})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestSealOpen_RoundTripAndWrongKey(t *testing.T) {
	g, err := NewGenerator("secret")
	require.NoError(t, err)
	token, err := g.Seal(TicketPayload{ReservationID: "r1", QuestID: "q1", Quantity: 3, Slot: "2026-09-01T09:00"})
	require.NoError(t, err)

	p, err := g.Open(token)
	require.NoError(t, err)
	assert.Equal(t, "r1", p.ReservationID)
	assert.Equal(t, 3, p.Quantity)

	other, err := NewGenerator("other")
	require.NoError(t, err)
	_, err = other.Open(token)
	assert.Error(t, err)

	_, err = g.Open("!!!")
	assert.Error(t, err)
}

func TestNewGenerator_RequiresSecret(t *testing.T) {
	_, err := NewGenerator("")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
