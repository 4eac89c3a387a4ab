package model

import (
	"fmt"
	"net/url"
	"strings"
)

// NavApp is the technician's preferred navigation application
type NavApp string

const (
	NavMaps   NavApp = "maps"
	NavWaze   NavApp = "waze"
	NavIPhone NavApp = "iphone"
)

// Pricing defaults applied when no technician profile is available
const (
	DefaultHourlyRate      = 28.0
	DefaultTravelUnitFee   = 12.0
	DefaultRoundingMinutes = 5

	// FallbackRoundingMinutes applies when a profile exists but never set
	// its rounding granularity.
	FallbackRoundingMinutes = 15
)

// TechnicianProfile supplies the pricing parameters for one technician
type TechnicianProfile struct {
	Technician      string  `json:"technician" yaml:"technician"`
	HourlyRate      float64 `json:"hourlyRate" yaml:"hourly_rate"`
	TravelUnitFee   float64 `json:"travelUnitFee" yaml:"travel_unit_fee"`
	RoundingMinutes int     `json:"roundingMinutes" yaml:"rounding_minutes"`
	GPS             NavApp  `json:"gpsPreference" yaml:"gps"`
}

// DefaultProfile returns the pricing used when the profile feature has
// nothing for the current technician
func DefaultProfile() TechnicianProfile {
	return TechnicianProfile{
		HourlyRate:      DefaultHourlyRate,
		TravelUnitFee:   DefaultTravelUnitFee,
		RoundingMinutes: DefaultRoundingMinutes,
		GPS:             NavMaps,
	}
}

// WithDefaults fills unset rates and navigation preference.
// RoundingMinutes is left alone: zero legitimately disables rounding.
func (p TechnicianProfile) WithDefaults() TechnicianProfile {
	if p.HourlyRate <= 0 {
		p.HourlyRate = DefaultHourlyRate
	}
	if p.TravelUnitFee <= 0 {
		p.TravelUnitFee = DefaultTravelUnitFee
	}
	if p.RoundingMinutes < 0 {
		p.RoundingMinutes = FallbackRoundingMinutes
	}
	switch p.GPS {
	case NavMaps, NavWaze, NavIPhone:
	default:
		p.GPS = NavMaps
	}
	return p
}

// NavigationURL builds a deep link to the address in the preferred app
func (p TechnicianProfile) NavigationURL(addr Address) string {
	q := url.QueryEscape(addr.String())
	switch p.GPS {
	case NavWaze:
		return "https://waze.com/ul?q=" + q
	case NavIPhone:
		return "http://maps.apple.com/?q=" + q
	default:
		return "https://www.google.com/maps/search/?api=1&query=" + q
	}
}

// Address is the site location of an intervention
type Address struct {
	Number     string `json:"numero"`
	Street     string `json:"rue"`
	City       string `json:"ville"`
	PostalCode string `json:"codePostal,omitempty"`
}

// String formats the address as "12 Rue X, City"
func (a Address) String() string {
	street := strings.TrimSpace(strings.TrimSpace(a.Number) + " " + strings.TrimSpace(a.Street))
	if a.City == "" {
		return street
	}
	if street == "" {
		return a.City
	}
	return fmt.Sprintf("%s, %s", street, a.City)
}

// IsZero returns true when no part of the address is set
func (a Address) IsZero() bool {
	return a == Address{}
}
