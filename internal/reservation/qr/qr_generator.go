package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"ms-questbooking/internal/models"

	"github.com/skip2/go-qrcode"
)

// TicketPayload is what the door scanner recovers from a reservation QR code.
type TicketPayload struct {
	ReservationID string    `json:"rid"`
	QuestID       string    `json:"qid"`
	UserID        string    `json:"uid"`
	Quantity      int       `json:"qty"`
	Slot          string    `json:"slot,omitempty"`
	IssuedAt      time.Time `json:"iat"`
}

type Generator struct {
	secret []byte
	size   int
}

var ErrMissingSecret = errors.New("ticket QR secret is not set")

func NewGenerator(secret string) (*Generator, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:], size: 256}, nil
}

// PNG renders the reservation as a QR code whose content is sealed with AES-GCM.
func (g *Generator) PNG(res models.Reservation) ([]byte, error) {
	token, err := g.Seal(TicketPayload{
		ReservationID: res.ReservationID,
		QuestID:       res.QuestID,
		UserID:        res.UserID,
		Quantity:      res.Quantity,
		Slot:          res.Slot,
		IssuedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, g.size)
}

// Seal encrypts the payload into a URL-safe token.
func (g *Generator) Seal(p TicketPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	gcm, err := g.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal and rejects tokens produced with another secret.
func (g *Generator) Open(token string) (*TicketPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	gcm, err := g.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("qr: token too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	var p TicketPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *Generator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
