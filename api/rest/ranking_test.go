package rest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopPairs(t *testing.T) {
	app := newTestApp(t)

	ctx := context.Background()
	require.True(t, app.store.SetFriendshipPoints(ctx, 1, 2, 100))
	require.True(t, app.store.SetFriendshipPoints(ctx, 2, 1, 50))
	require.True(t, app.store.SetFriendshipPoints(ctx, 3, 4, 80))

	w := getJSON(app.r, "/api/ranking/pairs?limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, false, resp["cached"])

	ranking, _ := resp["ranking"].([]interface{})
	require.Len(t, ranking, 2)
	first, _ := ranking[0].(map[string]interface{})
	assert.EqualValues(t, 1, first["player_a"])
	assert.EqualValues(t, 2, first["player_b"])
	assert.EqualValues(t, 150, first["total"])

	// Second read serves the cached snapshot.
	w = getJSON(app.r, "/api/ranking/pairs?limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody(t, w)
	assert.Equal(t, true, resp["cached"])
	ranking, _ = resp["ranking"].([]interface{})
	assert.Len(t, ranking, 2)
}

func TestTopPairsEmpty(t *testing.T) {
	app := newTestApp(t)

	w := getJSON(app.r, "/api/ranking/pairs")
	require.Equal(t, http.StatusOK, w.Code)
	ranking, _ := decodeBody(t, w)["ranking"].([]interface{})
	assert.Empty(t, ranking)
}
