package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	j := NewJWT("s3cret", time.Hour)
	tok, err := j.Sign(42)
	require.NoError(t, err)

	id, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = NewJWT("other", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	j := NewJWT("s3cret", time.Minute)
	j.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := j.Sign(42)
	require.NoError(t, err)

	j.now = time.Now
	_, err = j.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, ComparePassword(h, "correct horse"))
	assert.False(t, ComparePassword(h, "wrong horse"))
}

func TestRequireAuth(t *testing.T) {
	j := NewJWT("s3cret", time.Hour)
	tok, err := j.Sign(9)
	require.NoError(t, err)

	h := RequireAuth(j)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, uint64(9), id)
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := map[string]int{
		"Bearer " + tok: http.StatusNoContent,
		"bearer " + tok: http.StatusNoContent,
		"":              http.StatusUnauthorized,
		"Bearer":        http.StatusUnauthorized,
		"Basic abc":     http.StatusUnauthorized,
		"Bearer junk":   http.StatusUnauthorized,
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, header)
	}
}
