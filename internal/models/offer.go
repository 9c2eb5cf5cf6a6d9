// internal/models/offer.go
package models

import (
	"fmt"
	"time"
)

// Offer is the invitation extended to one candidate for one mission.
type Offer struct {
	MissionID   string     `json:"missionId"`
	CandidateID string     `json:"candidateId"`
	SentAt      time.Time  `json:"sentAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	Expired     bool       `json:"expired"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	RefusedAt   *time.Time `json:"refusedAt,omitempty"`
}

// Open reports whether the offer itself is still answerable at now. The
// mission must additionally be published for the offer to be usable.
func (o Offer) Open(now time.Time) bool {
	return now.Before(o.ExpiresAt) && o.AcceptedAt == nil && o.RefusedAt == nil
}

// OfferUsable is the single usability rule applied by listing and claiming.
func OfferUsable(o Offer, missionStatus MissionStatus, now time.Time) bool {
	return missionStatus == MissionPublished && o.Open(now)
}

// ClaimResult is the outcome of a claim attempt. Contention outcomes are values, not errors.
type ClaimResult string

const (
	ClaimOK                     ClaimResult = "OK"
	ClaimAlreadyTaken           ClaimResult = "ALREADY_TAKEN"
	ClaimOfferNotFoundOrExpired ClaimResult = "OFFER_NOT_FOUND_OR_EXPIRED"
)

func ParseClaimResult(s string) (ClaimResult, error) {
	switch r := ClaimResult(s); r {
	case ClaimOK, ClaimAlreadyTaken, ClaimOfferNotFoundOrExpired:
		return r, nil
	default:
		return "", fmt.Errorf("unknown claim result %q", s)
	}
}

// Targeting reports how the eligibility filters narrowed the worker population.
type Targeting struct {
	TotalCandidates     int      `json:"totalCandidates"`
	AfterSkillFilter    int      `json:"afterSkillFilter"`
	AfterBlackoutFilter int      `json:"afterBlackoutFilter"`
	FinalEligible       int      `json:"finalEligible"`
	SkillFilterApplied  bool     `json:"skillFilterApplied"`
	CandidateIDs        []string `json:"-"`
}

// PublishResult is returned by a successful publication.
type PublishResult struct {
	MissionID     string    `json:"missionId"`
	OffersCreated int       `json:"offersCreated"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Targeting     Targeting `json:"targeting"`
}

// OfferView is an offer as shown to a viewer, with location masked unless the
// viewer holds the mission.
type OfferView struct {
	MissionID     string        `json:"missionId"`
	MissionTitle  string        `json:"missionTitle"`
	MissionStatus MissionStatus `json:"missionStatus"`
	CandidateID   string        `json:"candidateId"`
	SentAt        time.Time     `json:"sentAt"`
	ExpiresAt     time.Time     `json:"expiresAt"`
	AcceptedAt    *time.Time    `json:"acceptedAt,omitempty"`
	RefusedAt     *time.Time    `json:"refusedAt,omitempty"`
	Usable        bool          `json:"usable"`
	Address       string        `json:"address"`
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	Precise       bool          `json:"precise"`
}

// OfferWithMission joins an offer with the mission fields needed for listing.
type OfferWithMission struct {
	Offer   Offer
	Mission Mission
}
