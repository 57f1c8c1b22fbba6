package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDownloadSignerSignAndVerify(t *testing.T) {
	now := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	signer := NewDownloadSigner("secret", time.Hour).WithClock(func() time.Time { return now })

	token, expiresAt, err := signer.Sign(DownloadClaims{ResponseID: "resp-1", ObjectKey: "requests/0002/a.pdf", UserGUID: "requester-1"})
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "resp-1", claims.ResponseID)
	require.Equal(t, "requests/0002/a.pdf", claims.ObjectKey)
	require.Equal(t, "requester-1", claims.UserGUID)
}

func TestDownloadSignerExpired(t *testing.T) {
	now := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	signer := NewDownloadSigner("secret", time.Minute).WithClock(func() time.Time { return now })
	token, _, err := signer.Sign(DownloadClaims{ResponseID: "resp-1", ObjectKey: "k"})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestDownloadSignerRejectsTampering(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, _, err := signer.Sign(DownloadClaims{ResponseID: "resp-1", ObjectKey: "k"})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[1] = encodeSegment("other")
	_, err = signer.Verify(strings.Join(parts, "."))
	require.ErrorIs(t, err, ErrTokenSignature)

	_, err = NewDownloadSigner("other-secret", time.Hour).Verify(token)
	require.ErrorIs(t, err, ErrTokenSignature)

	_, err = signer.Verify("nope")
	require.ErrorIs(t, err, ErrTokenMalformed)
}
