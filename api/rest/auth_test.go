package rest_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAutoRegister(t *testing.T) {
	app := newTestApp(t)

	w := postJSON(app.r, "/api/auth/login", map[string]string{
		"name":     "alice",
		"password": "pass1234",
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody(t, w)
	assert.NotEmpty(t, resp["token"])
	assert.NotZero(t, resp["player_id"])
	assert.Equal(t, "alice", resp["name"])
}

func TestLoginWrongPassword(t *testing.T) {
	app := newTestApp(t)
	login(t, app, "bob")

	w := postJSON(app.r, "/api/auth/login", map[string]string{
		"name":     "bob",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginValidation(t *testing.T) {
	app := newTestApp(t)

	w := postJSON(app.r, "/api/auth/login", map[string]string{
		"name":     "x",
		"password": "pass1234",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	app := newTestApp(t)
	token, _ := login(t, app, "carol")

	w := getJSON(app.r, "/api/points/balance", bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(app.r, "/api/auth/logout", nil, bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code)

	w = getJSON(app.r, "/api/points/balance", bearer(token)...)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	app := newTestApp(t)
	token, _ := login(t, app, "dave")

	w := postJSON(app.r, "/api/auth/refresh", nil, bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	newToken, _ := resp["token"].(string)
	require.NotEmpty(t, newToken)

	// Old token no longer carries a session; the new one does.
	w = getJSON(app.r, "/api/points/balance", bearer(token)...)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = getJSON(app.r, "/api/points/balance", "Authorization", "Bearer "+newToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t)

	w := getJSON(app.r, "/api/points/balance")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = getJSON(app.r, "/api/points/balance", "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
