package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner creates and validates signed receipt download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a token binding a fee to its receipt number.
func (s *SignedURLSigner) Generate(feeID, receiptNumber string) (string, time.Time, error) {
	if feeID == "" || receiptNumber == "" {
		return "", time.Time{}, fmt.Errorf("feeID and receiptNumber required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedReceipt := base64.RawURLEncoding.EncodeToString([]byte(receiptNumber))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{feeID, ts, encodedReceipt, s.sign(feeID, ts, encodedReceipt)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded fee and receipt number.
func (s *SignedURLSigner) Parse(token string) (feeID, receiptNumber string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", fmt.Errorf("invalid token format")
	}
	feeID, ts, encodedReceipt, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(feeID, ts, encodedReceipt)), []byte(signature)) {
		return "", "", fmt.Errorf("invalid token signature")
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", fmt.Errorf("invalid timestamp")
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", "", fmt.Errorf("token expired")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encodedReceipt)
	if err != nil {
		return "", "", fmt.Errorf("decode receipt: %w", err)
	}
	return feeID, string(raw), nil
}

func (s *SignedURLSigner) sign(feeID, ts, encodedReceipt string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(feeID + "|" + ts + "|" + encodedReceipt))
	return hex.EncodeToString(mac.Sum(nil))
}
