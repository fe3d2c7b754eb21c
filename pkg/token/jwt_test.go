package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(now *time.Time) *Manager {
	m := NewManager("test-secret", 30*time.Minute)
	m.now = func() time.Time { return *now }
	return m
}

// flipChar 替换第 i 个字符，保证结果与原字符不同。
func flipChar(s string, i int) string {
	repl := byte('A')
	if s[i] == 'A' {
		repl = 'B'
	}
	return s[:i] + string(repl) + s[i+1:]
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	issued, err := m.Issue("session-1", now)
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	require.Len(t, issued.ClientKey, 64)
	require.Equal(t, now.Add(30*time.Minute), issued.ExpiresAt)

	claims, err := m.Verify(issued.Token)
	require.NoError(t, err)
	require.Equal(t, "session-1", claims.SessionID)
	require.Equal(t, issued.ClientKey, claims.ClientKey)
	require.Equal(t, now.UnixMilli(), claims.CreatedAt)
}

func TestIssue_ClientKeysAreRandom(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)
	a, err := m.Issue("s", now)
	require.NoError(t, err)
	b, err := m.Issue("s", now)
	require.NoError(t, err)
	require.NotEqual(t, a.ClientKey, b.ClientKey)
}

func TestVerify_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(&now)
	issued, err := m.Issue("session-1", now)
	require.NoError(t, err)

	now = issued.ExpiresAt.Add(-time.Second)
	_, err = m.Verify(issued.Token)
	require.NoError(t, err)

	now = issued.ExpiresAt
	_, err = m.Verify(issued.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	now = issued.ExpiresAt.Add(time.Hour)
	_, err = m.Verify(issued.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssue_ExpiresAtMatchesTokenPrecision(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 700*int(time.Millisecond), time.UTC)
	m := newTestManager(&now)
	issued, err := m.Issue("session-1", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), issued.ExpiresAt)

	now = issued.ExpiresAt.Add(-time.Millisecond)
	_, err = m.Verify(issued.Token)
	require.NoError(t, err)

	now = issued.ExpiresAt
	_, err = m.Verify(issued.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_TamperedPayloadAndSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(&now)
	issued, err := m.Issue("session-1", now)
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)

	for i := 1; i < len(parts[1])-1; i += 7 {
		tampered := parts[0] + "." + flipChar(parts[1], i) + "." + parts[2]
		_, err := m.Verify(tampered)
		require.ErrorIs(t, err, ErrInvalidToken, "payload index %d", i)
	}
	for i := 0; i < len(parts[2])-1; i += 5 {
		tampered := parts[0] + "." + parts[1] + "." + flipChar(parts[2], i)
		_, err := m.Verify(tampered)
		require.ErrorIs(t, err, ErrInvalidToken, "signature index %d", i)
	}
}

func TestVerify_WrongSecretAndGarbage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestManager(&now)
	issued, err := issuer.Issue("session-1", now)
	require.NoError(t, err)

	other := NewManager("another-secret", time.Hour)
	other.now = func() time.Time { return now }
	_, err = other.Verify(issued.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	for _, bad := range []string{"", "abc", "a.b.c"} {
		_, err := issuer.Verify(bad)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestKeysEqual(t *testing.T) {
	require.True(t, KeysEqual("abc", "abc"))
	require.False(t, KeysEqual("abc", "abd"))
	require.False(t, KeysEqual("abc", ""))
}
