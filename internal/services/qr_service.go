package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/clubpos/backend/internal/models"
)

// QRService renders staged card payments as scannable QR codes so a
// customer can pay a pending sale from the club app instead of the
// terminal. Codes expire after ttl; a QR on a till display should not
// outlive the sale it belongs to.
type QRService struct {
	redis *redis.Client
	ttl   time.Duration
}

type qrPayload struct {
	BridgeID  int64           `json:"bridgeId"`
	Amount    models.Currency `json:"amount"`
	Timestamp int64           `json:"timestamp"`
	Nonce     string          `json:"nonce"`
}

func NewQRService(redisClient *redis.Client, ttl time.Duration) *QRService {
	return &QRService{redis: redisClient, ttl: ttl}
}

// GenerateQRCode encodes a staged payment reference as a QR image.
// Returns the opaque token and a base64 PNG.
func (s *QRService) GenerateQRCode(ctx context.Context, bridgeID int64, amount models.Currency) (string, string, error) {
	payload := qrPayload{
		BridgeID:  bridgeID,
		Amount:    amount,
		Timestamp: time.Now().Unix(),
		Nonce:     s.generateNonce(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	token := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qr:%s", token)
	if err := s.redis.Set(ctx, key, jsonData, s.ttl).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return token, qrImage, nil
}

// ProcessQRCode redeems a scanned token. Single use: GETDEL consumes
// the redis key atomically, so of two concurrent scans exactly one wins.
func (s *QRService) ProcessQRCode(ctx context.Context, token string) (int64, models.Currency, error) {
	key := fmt.Sprintf("qr:%s", token)

	data, err := s.redis.GetDel(ctx, key).Bytes()
	if err == redis.Nil {
		return 0, 0, fmt.Errorf("invalid or expired QR code")
	}
	if err != nil {
		return 0, 0, err
	}

	var payload qrPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, 0, err
	}

	return payload.BridgeID, payload.Amount, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
