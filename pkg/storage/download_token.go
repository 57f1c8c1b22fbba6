package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token validation failures.
var (
	ErrTokenMalformed = errors.New("malformed download token")
	ErrTokenSignature = errors.New("invalid download token signature")
	ErrTokenExpired   = errors.New("download token expired")
)

// DownloadClaims identifies the file a token grants access to.
type DownloadClaims struct {
	ResponseID string
	ObjectKey  string
	UserGUID   string
	ExpiresAt  time.Time
}

// DownloadSigner issues and verifies short-lived file download tokens.
type DownloadSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDownloadSigner constructs a signer with the provided secret and TTL.
func NewDownloadSigner(secret string, ttl time.Duration) *DownloadSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &DownloadSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock overrides the time source.
func (s *DownloadSigner) WithClock(now func() time.Time) *DownloadSigner {
	s.now = now
	return s
}

// Sign returns a token for the claims; ExpiresAt is filled from the TTL.
func (s *DownloadSigner) Sign(claims DownloadClaims) (string, time.Time, error) {
	if claims.ResponseID == "" || claims.ObjectKey == "" {
		return "", time.Time{}, fmt.Errorf("response id and object key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC().Truncate(time.Second)
	parts := []string{
		encodeSegment(claims.ResponseID),
		encodeSegment(claims.ObjectKey),
		encodeSegment(claims.UserGUID),
		strconv.FormatInt(expiresAt.Unix(), 10),
	}
	payload := strings.Join(parts, ".")
	return payload + "." + s.signature(payload), expiresAt, nil
}

// Verify checks the signature and expiry and returns the embedded claims.
func (s *DownloadSigner) Verify(token string) (DownloadClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 5 {
		return DownloadClaims{}, ErrTokenMalformed
	}
	payload := strings.Join(parts[:4], ".")
	if !hmac.Equal([]byte(s.signature(payload)), []byte(parts[4])) {
		return DownloadClaims{}, ErrTokenSignature
	}

	var claims DownloadClaims
	var err error
	if claims.ResponseID, err = decodeSegment(parts[0]); err != nil {
		return DownloadClaims{}, err
	}
	if claims.ObjectKey, err = decodeSegment(parts[1]); err != nil {
		return DownloadClaims{}, err
	}
	if claims.UserGUID, err = decodeSegment(parts[2]); err != nil {
		return DownloadClaims{}, err
	}
	unix, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return DownloadClaims{}, ErrTokenMalformed
	}
	claims.ExpiresAt = time.Unix(unix, 0).UTC()
	if s.now().After(claims.ExpiresAt) {
		return DownloadClaims{}, ErrTokenExpired
	}
	return claims, nil
}

func (s *DownloadSigner) signature(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func encodeSegment(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeSegment(segment string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return "", ErrTokenMalformed
	}
	return string(raw), nil
}
