package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railsim/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTileID(t *testing.T) {
	assert.Equal(t, "0/0/0", TileID(28.6, 77.2, 0))
	assert.Equal(t, "1/1/0", TileID(28.6, 77.2, 1))
	assert.Equal(t, "8/182/106", TileID(28.6402816, 77.2204103, 8))
}

func TestParseTileID(t *testing.T) {
	tile, ok := ParseTileID("8/182/106")
	require.True(t, ok)
	assert.Equal(t, uint32(182), tile.X)
	assert.Equal(t, uint32(106), tile.Y)

	for _, bad := range []string{"", "8/182", "x/y/z", "1/2/0", "-1/0/0"} {
		_, ok := ParseTileID(bad)
		assert.False(t, ok, bad)
	}
}

func TestTileBoundContainsPoint(t *testing.T) {
	id := TileID(23.2664845, 77.4130845, 8)
	b, ok := TileBound(id)
	require.True(t, ok)
	assert.True(t, b.Contains(orb.Point{77.4130845, 23.2664845}))
}

func TestAdjacentTiles(t *testing.T) {
	assert.Len(t, AdjacentTiles("8/182/106"), 9)
	assert.Len(t, AdjacentTiles("8/0/0"), 4)
	assert.Nil(t, AdjacentTiles("bogus"))
}

func TestTilesInBound(t *testing.T) {
	b := orb.Bound{Min: orb.Point{76.0, 22.0}, Max: orb.Point{78.0, 24.0}}
	tiles := TilesInBound(b, 8)
	assert.Contains(t, tiles, TileID(23.2664845, 77.4130845, 8))
	assert.Contains(t, tiles, TileID(22.01, 76.01, 8))
	assert.Contains(t, tiles, TileID(23.99, 77.99, 8))
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		return Message{Type: msg.Type, Payload: msg.Payload}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHubRoutesDeltasByTile(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	north := NewClient("north", 8)
	south := NewClient("south", 8)
	h.Register(north)
	h.Register(south)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	h.Subscribe(north, []string{"8/1/1"})
	h.Subscribe(south, []string{"8/2/2"})

	h.Broadcast([]domain.TrainDelta{
		{Type: domain.DeltaUpdate, Train: &domain.TrainView{ID: "12301"}, TileID: "8/1/1"},
		{Type: domain.DeltaRemove, ID: "12002", TileID: "8/1/1"},
	})

	msg := receive(t, north)
	assert.Equal(t, MessageDelta, msg.Type)
	var payload DeltaPayload
	require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &payload))
	require.Len(t, payload.Updates, 1)
	assert.Equal(t, "12301", payload.Updates[0].ID)
	assert.Equal(t, []string{"12002"}, payload.Removes)

	select {
	case <-south.Send:
		t.Fatal("south should not receive north tile deltas")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBroadcastsRisksAndClockToAll(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a := NewClient("a", 8)
	b := NewClient("b", 8)
	h.Register(a)
	h.Register(b)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	h.BroadcastRisks([]domain.RiskView{{TrainA: "1", TrainB: "2", Classification: "head-on"}})
	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, MessageRisks, msg.Type)
		var risks []domain.RiskView
		require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &risks))
		assert.Equal(t, "head-on", risks[0].Classification)
	}

	h.BroadcastClock(domain.ClockView{Multiplier: 4})
	msg := receive(t, a)
	assert.Equal(t, MessageClock, msg.Type)
}

func TestHubUnregisterClosesClient(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := NewClient("c", 1)
	h.Register(c)
	h.Subscribe(c, []string{"8/1/1"})
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-c.Send
	assert.False(t, open)
}

func startHub(t *testing.T, clients ...*Client) *Hub {
	t.Helper()
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	for _, c := range clients {
		h.Register(c)
	}
	require.Eventually(t, func() bool { return h.ClientCount() == len(clients) }, time.Second, 5*time.Millisecond)
	return h
}

func decodeDelta(t *testing.T, msg Message) DeltaPayload {
	t.Helper()
	require.Equal(t, MessageDelta, msg.Type)
	var payload DeltaPayload
	require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &payload))
	return payload
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message for %s: %s", c.ID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubFollowedTrainReachesClientOutsideTiles(t *testing.T) {
	follower := NewClient("follower", 8)
	other := NewClient("other", 8)
	h := startHub(t, follower, other)

	h.Follow(follower, []string{"12301"})
	h.Subscribe(other, []string{"8/9/9"})

	h.Broadcast([]domain.TrainDelta{
		{Type: domain.DeltaUpdate, Train: &domain.TrainView{ID: "12301"}, TileID: "8/1/1"},
		{Type: domain.DeltaUpdate, Train: &domain.TrainView{ID: "12002"}, TileID: "8/1/1"},
	})

	payload := decodeDelta(t, receive(t, follower))
	require.Len(t, payload.Updates, 1)
	assert.Equal(t, "12301", payload.Updates[0].ID)
	assertSilent(t, other)

	h.Unfollow(follower, []string{"12301"})
	assert.False(t, follower.Follows("12301"))
	h.Broadcast([]domain.TrainDelta{
		{Type: domain.DeltaUpdate, Train: &domain.TrainView{ID: "12301"}, TileID: "8/1/1"},
	})
	assertSilent(t, follower)
}

func TestHubTileMoveIsAnUpdateNotARemove(t *testing.T) {
	c := NewClient("c", 8)
	h := startHub(t, c)
	h.Subscribe(c, []string{"8/1/1", "8/1/2"})

	h.Broadcast([]domain.TrainDelta{
		{Type: domain.DeltaRemove, ID: "12301", TileID: "8/1/1"},
		{Type: domain.DeltaUpdate, Train: &domain.TrainView{ID: "12301", TileID: "8/1/2"}, TileID: "8/1/2"},
		{Type: domain.DeltaRemove, ID: "12002", TileID: "8/1/1"},
	})

	payload := decodeDelta(t, receive(t, c))
	require.Len(t, payload.Updates, 1)
	assert.Equal(t, "12301", payload.Updates[0].ID)
	assert.Equal(t, []string{"12002"}, payload.Removes)
}

func TestHubFollowerSeesTrainLeaveTheNetwork(t *testing.T) {
	c := NewClient("c", 8)
	h := startHub(t, c)
	h.Follow(c, []string{"12301"})

	h.Broadcast([]domain.TrainDelta{{Type: domain.DeltaRemove, ID: "12301", TileID: "8/1/1"}})

	payload := decodeDelta(t, receive(t, c))
	assert.Empty(t, payload.Updates)
	assert.Equal(t, []string{"12301"}, payload.Removes)
}

func TestHubRiskModes(t *testing.T) {
	all := NewClient("all", 8)
	followed := NewClient("followed", 8)
	off := NewClient("off", 8)
	h := startHub(t, all, followed, off)

	h.Follow(followed, []string{"12002"})
	require.True(t, h.SetRiskMode(followed, RiskFollowed))
	require.True(t, h.SetRiskMode(off, RiskOff))
	assert.False(t, h.SetRiskMode(all, RiskMode("some")))
	assert.Equal(t, RiskAll, all.RiskMode())

	h.BroadcastRisks([]domain.RiskView{
		{TrainA: "12002", TrainB: "12301", Classification: "head-on"},
		{TrainA: "16031", TrainB: "19023", Classification: "rear-end"},
	})

	var risks []domain.RiskView
	msg := receive(t, all)
	require.Equal(t, MessageRisks, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &risks))
	assert.Len(t, risks, 2)

	msg = receive(t, followed)
	require.Equal(t, MessageRisks, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &risks))
	require.Len(t, risks, 1)
	assert.Equal(t, "head-on", risks[0].Classification)

	assertSilent(t, off)
}

func TestFilterRisksNeverNil(t *testing.T) {
	c := NewClient("c", 1)
	assert.NotNil(t, FilterRisks(c, nil))
}
