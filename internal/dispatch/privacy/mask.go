// Package privacy hides precise mission locations from workers who have not
// claimed the mission.
package privacy

import (
	"fmt"
	"math"
	"strings"

	"mission-dispatch/internal/models"
)

// Policy selects how much of an address is shown before a claim.
type Policy string

const (
	PolicyCity   Policy = "city"
	PolicyHidden Policy = "hidden"
)

// HiddenAddress is shown when nothing about the location may be revealed.
const HiddenAddress = "Location revealed after claim"

// gridStep is the coordinate cell size in degrees (about 1.1 km of latitude).
const gridStep = 0.01

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyCity, PolicyHidden:
		return p, nil
	default:
		return "", fmt.Errorf("unknown privacy policy %q", s)
	}
}

// MaskAddress returns the address a viewer may see.
func MaskAddress(address, city string, policy Policy, hasClaimed bool) string {
	if hasClaimed {
		return address
	}

	masked := HiddenAddress
	if policy == PolicyCity {
		if c := strings.TrimSpace(city); c != "" {
			masked = c
		}
	}
	if masked == address {
		return HiddenAddress
	}
	return masked
}

// MaskCoordinates snaps a point to the centre of its grid cell. A point already
// at a cell centre is moved to the cell corner so the output never equals the input.
func MaskCoordinates(lat, lng float64, hasClaimed bool) (float64, float64) {
	if hasClaimed {
		return lat, lng
	}
	return snap(lat), snap(lng)
}

func snap(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	corner := math.Floor(v/gridStep) * gridStep
	centre := corner + gridStep/2
	if centre == v {
		return corner
	}
	return centre
}

// HasClaimed reports whether viewerID is the mission's assigned worker.
func HasClaimed(m models.Mission, viewerID string) bool {
	return viewerID != "" && m.IsAssignedTo(viewerID)
}

// Masker applies a fixed policy to offer views.
type Masker struct {
	policy Policy
}

func NewMasker(policy Policy) *Masker {
	return &Masker{policy: policy}
}

// View builds the viewer-relative projection of an offer.
func (m *Masker) View(o models.Offer, mission models.Mission, viewerID string, usable bool) models.OfferView {
	claimed := HasClaimed(mission, viewerID)
	lat, lng := MaskCoordinates(mission.Latitude, mission.Longitude, claimed)

	return models.OfferView{
		MissionID:     o.MissionID,
		MissionTitle:  mission.Title,
		MissionStatus: mission.Status,
		CandidateID:   o.CandidateID,
		SentAt:        o.SentAt,
		ExpiresAt:     o.ExpiresAt,
		AcceptedAt:    o.AcceptedAt,
		RefusedAt:     o.RefusedAt,
		Usable:        usable,
		Address:       MaskAddress(mission.Address, mission.City, m.policy, claimed),
		Latitude:      lat,
		Longitude:     lng,
		Precise:       claimed,
	}
}
