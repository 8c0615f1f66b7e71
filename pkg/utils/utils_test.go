package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret")

	access, refresh, expiresIn, err := svc.GenerateTokenPair("user-1")
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Add(AccessTokenTTL).Unix(), expiresIn, 5)

	claims, err := svc.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	_, err = svc.ValidateAccessToken(refresh)
	assert.Error(t, err)

	fresh, _, err := svc.RefreshAccessToken(refresh)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(fresh)
	assert.NoError(t, err)

	_, err = NewJWTService("other").ValidateToken(access)
	assert.Error(t, err)
}

func TestJWTExpiry(t *testing.T) {
	svc := NewJWTService("secret")
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	access, _, _, err := svc.GenerateTokenPair("user-1")
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(AccessTokenTTL + time.Minute) }
	_, err = svc.ValidateAccessToken(access)
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	a, err := GenerateURLToken(32)
	require.NoError(t, err)
	b, err := GenerateURLToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.NotContains(t, a, "=")

	assert.Equal(t, HashToken(a, "s"), HashToken(a, "s"))
	assert.NotEqual(t, HashToken(a, "s"), HashToken(a, "t"))
	assert.Len(t, HashToken(a, "s"), 64)
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		Email string `validate:"required,email"`
		Name  string `validate:"required"`
	}

	assert.NoError(t, ValidateStruct(input{Email: "a@b.co", Name: "A"}))

	err := ValidateStruct(input{Email: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email failed on 'email'")
	assert.Contains(t, err.Error(), "Name failed on 'required'")
}

func TestResponses(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessResponse(rec, nil)
	assert.JSONEq(t, `{"success":true,"data":null}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteValidationErrorResponse(rec, "Invalid input", "Name failed on 'required'")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Success bool     `json:"success"`
		Error   APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
}

func TestParseJSONBodyRejectsUnknownFields(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	assert.Error(t, ParseJSONBody(req, &v))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, ParseJSONBody(req, &v))
	assert.Equal(t, "a", v.Name)
}
