package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	api := setupTestAPI(t)

	tests := []struct {
		name           string
		requestBody    interface{}
		expectedStatus int
	}{
		{"valid", CredentialsRequest{Email: "new@example.com", Password: "secret1"}, http.StatusCreated},
		{"duplicate", CredentialsRequest{Email: "NEW@example.com", Password: "secret1"}, http.StatusConflict},
		{"invalid email", CredentialsRequest{Email: "nope", Password: "secret1"}, http.StatusBadRequest},
		{"weak password", CredentialsRequest{Email: "weak@example.com", Password: "123"}, http.StatusBadRequest},
		{"missing fields", map[string]string{"email": "x@example.com"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/auth/register", tt.requestBody, "")
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			if tt.expectedStatus == http.StatusCreated {
				assert.Equal(t, "new@example.com", response["email"])
				assert.NotContains(t, response, "PasswordHash")
			} else {
				assert.Contains(t, response, "error")
			}
		})
	}
}

func TestLoginAndSession(t *testing.T) {
	api := setupTestAPI(t)
	creds := CredentialsRequest{Email: "session@example.com", Password: "secret1"}
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/api/auth/register", creds, "").Code)

	w := api.do(t, http.MethodPost, "/api/auth/login", CredentialsRequest{Email: creds.Email, Password: "wrong!"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/login", creds, "")
	require.Equal(t, http.StatusOK, w.Code)
	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == authCookieName {
			cookie = ck
		}
	}
	require.NotNil(t, cookie, "login should set the session cookie")
	assert.True(t, cookie.HttpOnly)

	t.Run("bearer token", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/auth/me", nil, cookie.Value)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), creds.Email)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: authCookieName, Value: cookie.Value})
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/auth/me", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("logout revokes", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/auth/logout", nil, cookie.Value)
		require.Equal(t, http.StatusOK, w.Code)

		w = api.do(t, http.MethodGet, "/api/auth/me", nil, cookie.Value)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestUpdatePassword(t *testing.T) {
	api := setupTestAPI(t)
	token := api.login(t, "changer@example.com")

	w := api.do(t, http.MethodPut, "/api/auth/password", PasswordRequest{Password: "abc"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPut, "/api/auth/password", PasswordRequest{Password: "brand-new"}, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/login", CredentialsRequest{Email: "changer@example.com", Password: "secret1"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = api.do(t, http.MethodPost, "/api/auth/login", CredentialsRequest{Email: "changer@example.com", Password: "brand-new"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordReset(t *testing.T) {
	api := setupTestAPI(t)
	api.login(t, "forgetful@example.com")

	for _, email := range []string{"forgetful@example.com", "nobody@example.com"} {
		w := api.do(t, http.MethodPost, "/api/auth/password/reset", ResetRequest{Email: email}, "")
		assert.Equal(t, http.StatusAccepted, w.Code, email)
	}

	token, err := api.handler.Auth.RequestPasswordReset(context.Background(), "forgetful@example.com")
	require.NoError(t, err)

	w := api.do(t, http.MethodPost, "/api/auth/password/reset/confirm", ResetConfirmRequest{Token: "garbage", Password: "reset-pass"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/password/reset/confirm", ResetConfirmRequest{Token: token, Password: "reset-pass"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	// The token is bound to the old password and cannot be replayed.
	w = api.do(t, http.MethodPost, "/api/auth/password/reset/confirm", ResetConfirmRequest{Token: token, Password: "again-pass"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/auth/login", CredentialsRequest{Email: "forgetful@example.com", Password: "reset-pass"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
