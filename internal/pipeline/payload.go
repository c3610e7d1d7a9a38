package pipeline

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Payload is the status-specific data stored with a record. The concrete
// type is selected by the record's status; see DecodePayload.
type Payload interface {
	// SiteID returns the site the record is scoped to, or 0 for legacy
	// records that predate site scoping.
	SiteID() int64
	common() *Common
}

// Common holds the fields every payload carries.
type Common struct {
	Site      int64    `json:"site,omitempty"`
	HiddenFor []string `json:"hiddenForUserIds,omitempty"`
}

// SiteID implements Payload.
func (c *Common) SiteID() int64 { return c.Site }

func (c *Common) common() *Common { return c }

// HiddenForUser reports whether userID suppressed this record from view.
func (c *Common) HiddenForUser(userID string) bool {
	return slices.Contains(c.HiddenFor, userID)
}

type ProspectingData struct {
	Common
}

type InterviewingData struct {
	Common
	ContactedDate string `json:"contactedDate,omitempty"`
}

type OfferMadeData struct {
	Common
}

// HiredData is written when an employer hires the participant.
// PreviousStatus names a competing claim at another site that stays current.
type HiredData struct {
	Common
	HiredDate      string `json:"hiredDate,omitempty"`
	StartDate      string `json:"startDate,omitempty"`
	PositionType   string `json:"positionType,omitempty"`
	PositionTitle  string `json:"positionTitle,omitempty"`
	PreviousStatus int64  `json:"previousStatus,omitempty"`
}

// ArchiveReasonROSComplete closes a hire without withdrawing the participant
// from the program.
const ArchiveReasonROSComplete = "rosComplete"

// ArchivedData is written on archive and copied into the displaced
// employer's PENDING_ACKNOWLEDGEMENT record.
type ArchivedData struct {
	Common
	Type    string `json:"type,omitempty"`
	Reason  string `json:"reason,omitempty"`
	EndDate string `json:"endDate,omitempty"`
	Status  string `json:"status,omitempty"`
}

type RejectedData struct {
	Common
	FinalStatus string `json:"final_status,omitempty"`
}

// RejectAcknowledgementData points back at the record a rejection superseded.
type RejectAcknowledgementData struct {
	Common
	RefStatusID int64  `json:"refStatusId,omitempty"`
	RefStatus   Status `json:"refStatus,omitempty"`
	FinalStatus string `json:"final_status,omitempty"`
}

// NewPayload returns an empty payload of the type stored for status.
func NewPayload(status Status) (Payload, error) {
	switch status {
	case StatusProspecting:
		return &ProspectingData{}, nil
	case StatusInterviewing:
		return &InterviewingData{}, nil
	case StatusOfferMade:
		return &OfferMadeData{}, nil
	case StatusHired:
		return &HiredData{}, nil
	case StatusArchived, StatusPendingAcknowledgement:
		return &ArchivedData{}, nil
	case StatusRejected:
		return &RejectedData{}, nil
	case StatusRejectAcknowledgement:
		return &RejectAcknowledgementData{}, nil
	}
	return nil, fmt.Errorf("no payload for status %q", status)
}

// DecodePayload parses raw JSON into the payload type for status. Empty
// input yields an empty payload.
func DecodePayload(status Status, raw []byte) (Payload, error) {
	p, err := NewPayload(status)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", status, err)
	}
	return p, nil
}

// EncodePayload serialises p for storage. A nil payload encodes as {}.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// payloadMatches reports whether p has the concrete type stored for status.
func payloadMatches(status Status, p Payload) bool {
	switch p.(type) {
	case *ProspectingData:
		return status == StatusProspecting
	case *InterviewingData:
		return status == StatusInterviewing
	case *OfferMadeData:
		return status == StatusOfferMade
	case *HiredData:
		return status == StatusHired
	case *ArchivedData:
		return status == StatusArchived || status == StatusPendingAcknowledgement
	case *RejectedData:
		return status == StatusRejected
	case *RejectAcknowledgementData:
		return status == StatusRejectAcknowledgement
	}
	return false
}

// clonePayload returns a copy of p that can be annotated without touching
// the caller's value.
func clonePayload(p Payload) Payload {
	var out Payload
	switch v := p.(type) {
	case *ProspectingData:
		c := *v
		out = &c
	case *InterviewingData:
		c := *v
		out = &c
	case *OfferMadeData:
		c := *v
		out = &c
	case *HiredData:
		c := *v
		out = &c
	case *ArchivedData:
		c := *v
		out = &c
	case *RejectedData:
		c := *v
		out = &c
	case *RejectAcknowledgementData:
		c := *v
		out = &c
	default:
		return p
	}
	out.common().HiddenFor = slices.Clone(p.common().HiddenFor)
	return out
}

// setSite assigns the payload's site.
func setSite(p Payload, site int64) {
	p.common().Site = site
}

// hideForUser adds userID to the payload's hidden set. It reports false when
// the user was already present.
func hideForUser(p Payload, userID string) bool {
	c := p.common()
	if slices.Contains(c.HiddenFor, userID) {
		return false
	}
	c.HiddenFor = append(c.HiddenFor, userID)
	return true
}
