package rest_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminKey() []string {
	return []string{"X-Admin-Key", testAdminKey}
}

func TestAdminRequiresKey(t *testing.T) {
	app := newTestApp(t)

	w := getJSON(app.r, "/api/admin/health")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = getJSON(app.r, "/api/admin/health", "X-Admin-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminHealth(t *testing.T) {
	app := newTestApp(t)

	w := getJSON(app.r, "/api/admin/health", adminKey()...)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "local", resp["primary"])

	backends, _ := resp["backends"].(map[string]interface{})
	local, _ := backends["local"].(map[string]interface{})
	require.NotNil(t, local)
	assert.Equal(t, true, local["connected"])
	assert.Equal(t, true, local["locks_healthy"])
}

func TestAdminSetPersonalPoints(t *testing.T) {
	app := newTestApp(t)
	_, id := login(t, app, "vera")

	w := postJSON(app.r, "/api/admin/points/personal", map[string]interface{}{
		"player_id": id,
		"points":    500,
	}, adminKey()...)
	require.Equal(t, http.StatusOK, w.Code)

	assert.EqualValues(t, 500, app.store.GetPersonalPoints(context.Background(), id))
}

func TestAdminSetPersonalPointsRejectsNegative(t *testing.T) {
	app := newTestApp(t)

	w := postJSON(app.r, "/api/admin/points/personal", map[string]interface{}{
		"player_id": 1,
		"points":    -1,
	}, adminKey()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminSetFriendshipPoints(t *testing.T) {
	app := newTestApp(t)

	w := postJSON(app.r, "/api/admin/points/friendship", map[string]interface{}{
		"sender_id":   1,
		"receiver_id": 2,
		"points":      75,
	}, adminKey()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 75, app.store.GetFriendshipPoints(context.Background(), 1, 2))
}

func TestAdminSetBoost(t *testing.T) {
	app := newTestApp(t)
	senderToken, senderID := login(t, app, "walt")
	_, receiverID := login(t, app, "xena")

	w := postJSON(app.r, "/api/admin/boost", map[string]interface{}{
		"player_id":  senderID,
		"multiplier": "2.0",
		"duration":   "1h",
	}, adminKey()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A boosted sender earns double on the next gift.
	w = postJSON(app.r, "/api/gifts/send", map[string]interface{}{
		"receiver_id": receiverID,
		"gift_id":     "gem",
	}, bearer(senderToken)...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 100, decodeBody(t, w)["awarded_points"])
}

func TestAdminSetBoostValidation(t *testing.T) {
	app := newTestApp(t)

	w := postJSON(app.r, "/api/admin/boost", map[string]interface{}{
		"player_id":  1,
		"multiplier": "zero",
		"duration":   "1h",
	}, adminKey()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(app.r, "/api/admin/boost", map[string]interface{}{
		"player_id":  1,
		"multiplier": "1.5",
		"duration":   "soon",
	}, adminKey()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminSyncSingleBackend(t *testing.T) {
	app := newTestApp(t)

	w := postJSON(app.r, "/api/admin/sync", nil, adminKey()...)
	require.Equal(t, http.StatusOK, w.Code)
	// Only one backend is configured, so the pass is skipped.
	assert.Equal(t, false, decodeBody(t, w)["ran"])
}

func TestAdminBackup(t *testing.T) {
	app := newTestApp(t)

	w := postJSON(app.r, "/api/admin/backup", nil, adminKey()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ok"])
}

func TestAdminPlayerOverview(t *testing.T) {
	app := newTestApp(t)
	_, id := login(t, app, "yves")
	require.True(t, app.store.SetPersonalPoints(context.Background(), id, 42))

	w := getJSON(app.r, fmt.Sprintf("/api/admin/players/%d", id), adminKey()...)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.EqualValues(t, 42, resp["points"])
}
