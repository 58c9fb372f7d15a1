package domain

import "strings"

// Category tags a train with its service class.
type Category string

const (
	CategoryRajdhani  Category = "RAJDHANI"
	CategoryShatabdi  Category = "SHATABDI"
	CategorySuperfast Category = "SUPERFAST"
	CategoryExpress   Category = "EXPRESS"
	CategoryPassenger Category = "PASSENGER"
	CategoryFreight   Category = "FREIGHT"
)

// Categories lists every category in fleet-distribution order.
var Categories = []Category{
	CategoryRajdhani,
	CategoryShatabdi,
	CategorySuperfast,
	CategoryExpress,
	CategoryPassenger,
	CategoryFreight,
}

// SpeedRange is a nominal speed band in km/h.
type SpeedRange struct {
	MinKmh float64 `json:"minKmh"`
	MaxKmh float64 `json:"maxKmh"`
}

type categoryProfile struct {
	name         string
	speed        SpeedRange
	dwellMinutes int
}

var profiles = map[Category]categoryProfile{
	CategoryRajdhani:  {"Rajdhani Express", SpeedRange{110, 130}, 3},
	CategoryShatabdi:  {"Shatabdi Express", SpeedRange{100, 120}, 3},
	CategorySuperfast: {"Superfast Express", SpeedRange{80, 110}, 4},
	CategoryExpress:   {"Express", SpeedRange{60, 90}, 5},
	CategoryPassenger: {"Passenger", SpeedRange{40, 70}, 6},
	CategoryFreight:   {"Freight", SpeedRange{25, 50}, 10},
}

func (c Category) profile() categoryProfile {
	if p, ok := profiles[c]; ok {
		return p
	}
	return profiles[CategoryExpress]
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := profiles[c]
	return ok
}

// DisplayName returns the human-readable category name.
func (c Category) DisplayName() string {
	return c.profile().name
}

// SpeedRange returns the nominal speed band of the category.
func (c Category) SpeedRange() SpeedRange {
	return c.profile().speed
}

// CruiseKmh is the average of the category speed band.
func (c Category) CruiseKmh() float64 {
	r := c.profile().speed
	return (r.MinKmh + r.MaxKmh) / 2
}

// DwellMinutes is the standard stop time at an intermediate station.
func (c Category) DwellMinutes() int {
	return c.profile().dwellMinutes
}

// HubDwellBonusMinutes is the extra dwell applied at major hubs.
func (c Category) HubDwellBonusMinutes() int {
	return max(5, c.DwellMinutes()/2)
}

// ParseCategory maps a feed value onto a category, defaulting to express.
func ParseCategory(s string) Category {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return CategoryExpress
}

// InferCategory derives a category from feed metadata first, then from the
// train name.
func InferCategory(name, metaCategory string) Category {
	c := strings.ToLower(metaCategory)
	switch {
	case strings.Contains(c, "rajdhani"):
		return CategoryRajdhani
	case strings.Contains(c, "shatabdi"):
		return CategoryShatabdi
	case containsAny(c, "vande bharat", "tejas", "gatiman", "duronto", "superfast"):
		return CategorySuperfast
	case containsAny(c, "mail", "express"):
		return CategoryExpress
	case containsAny(c, "passenger", "memu", "demu"):
		return CategoryPassenger
	case containsAny(c, "goods", "freight"):
		return CategoryFreight
	}

	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "rajdhani"):
		return CategoryRajdhani
	case containsAny(n, "shatabdi", "janshatabdi"):
		return CategoryShatabdi
	case containsAny(n, "vande bharat", "tejas", "gatimaan", "duronto", "sampark kranti", "superfast"):
		return CategorySuperfast
	case containsAny(n, "passenger", "memu", "demu"):
		return CategoryPassenger
	case containsAny(n, "goods", "freight"):
		return CategoryFreight
	}
	return CategoryExpress
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
