// Package overpass looks up railway speed limits from OpenStreetMap through
// the Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	MinSpeedKmh = 20.0
	MaxSpeedKmh = 200.0

	minRadiusM = 3000
	maxRadiusM = 15000
	mphToKmh   = 1.60934
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type apiResponse struct {
	Elements []struct {
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
	Remark string `json:"remark,omitempty"`
}

// RadiusFor is the search radius around a segment midpoint: half a metre per
// kilometre of segment length, clamped to 3-15 km.
func RadiusFor(segmentKm float64) int {
	r := segmentKm * 500
	return int(math.Max(minRadiusM, math.Min(maxRadiusM, r)))
}

// SegmentSpeed returns the median maxspeed of the rail ways found around
// (lat, lon). ok is false when no way carries a usable tag.
func (c *Client) SegmentSpeed(ctx context.Context, lat, lon float64, radiusM int) (speed float64, ok bool, err error) {
	query := fmt.Sprintf(`[out:json][timeout:25];way["railway"="rail"]["maxspeed"](around:%d,%f,%f);out tags;`, radiusM, lat, lon)
	form := url.Values{}
	form.Set("data", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return 0, false, fmt.Errorf("decoding response: %w", err)
	}

	speeds := make([]float64, 0, len(apiResp.Elements))
	for _, el := range apiResp.Elements {
		tag := el.Tags["maxspeed"]
		if tag == "" {
			tag = el.Tags["maxspeed:forward"]
		}
		if tag == "" {
			tag = el.Tags["maxspeed:backward"]
		}
		if v, ok := ParseMaxSpeed(tag); ok {
			speeds = append(speeds, v)
		}
	}
	if len(speeds) == 0 {
		return 0, false, nil
	}

	sort.Float64s(speeds)
	return math.Round(speeds[len(speeds)/2]), true, nil
}

var maxSpeedPattern = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*(mph|kmh|km/h|kph)?`)

// ParseMaxSpeed reads an OSM maxspeed value such as "110", "110 km/h",
// "70 mph" or "100;90" into km/h clamped to 20-200.
func ParseMaxSpeed(tag string) (float64, bool) {
	primary := strings.TrimSpace(strings.SplitN(tag, ";", 2)[0])
	m := maxSpeedPattern.FindStringSubmatch(primary)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(m[2], "mph") {
		v *= mphToKmh
	}
	return math.Max(MinSpeedKmh, math.Min(MaxSpeedKmh, v)), true
}
