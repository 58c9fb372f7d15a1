package overpass

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMaxSpeed(t *testing.T) {
	tests := []struct {
		tag  string
		want float64
		ok   bool
	}{
		{"110", 110, true},
		{"110 km/h", 110, true},
		{"100;90", 100, true},
		{"50 mph", 50 * 1.60934, true},
		{"5", 20, true},
		{"350", 200, true},
		{"signals", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, ok := ParseMaxSpeed(tt.tag)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRadiusFor(t *testing.T) {
	assert.Equal(t, 3000, RadiusFor(1))
	assert.Equal(t, 5000, RadiusFor(10))
	assert.Equal(t, 15000, RadiusFor(400))
}

func TestSegmentSpeedMedian(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		query = r.PostForm.Get("data")
		fmt.Fprint(w, `{"elements":[
			{"tags":{"maxspeed":"130"}},
			{"tags":{"maxspeed":"90"}},
			{"tags":{"maxspeed:forward":"110 km/h"}},
			{"tags":{"name":"no speed"}}
		]}`)
	}))
	defer srv.Close()

	speed, ok, err := New(srv.URL).SegmentSpeed(context.Background(), 23.2, 77.4, 5000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 110.0, speed)
	assert.True(t, strings.Contains(query, "around:5000,23.200000,77.400000"))
}

func TestSegmentSpeedEmptyAndErrors(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"elements":[]}`)
	}))
	defer empty.Close()

	_, ok, err := New(empty.URL).SegmentSpeed(context.Background(), 0, 0, 3000)
	require.NoError(t, err)
	assert.False(t, ok)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer failing.Close()

	_, _, err = New(failing.URL).SegmentSpeed(context.Background(), 0, 0, 3000)
	assert.Error(t, err)
}
