package domain

import (
	"strings"
	"time"
)

type CallStatus string

const (
	CallRinging   CallStatus = "RINGING"
	CallAnswered  CallStatus = "ANSWERED"
	CallCompleted CallStatus = "COMPLETED"
	CallBusy      CallStatus = "BUSY"
	CallNoAnswer  CallStatus = "NO_ANSWER"
	CallFailed    CallStatus = "FAILED"
)

var vendorCallStatuses = map[string]CallStatus{
	"ringing":     CallRinging,
	"in-progress": CallAnswered,
	"completed":   CallCompleted,
	"busy":        CallBusy,
	"no-answer":   CallNoAnswer,
	"failed":      CallFailed,
	"canceled":    CallFailed,
}

// MapVendorCallStatus maps a telephony vendor status to CallStatus.
// Unknown values map to CallRinging.
func MapVendorCallStatus(vendor string) CallStatus {
	if status, ok := vendorCallStatuses[strings.ToLower(strings.TrimSpace(vendor))]; ok {
		return status
	}
	return CallRinging
}

// Live reports whether the caller is still on the line waiting for a voice response.
func (s CallStatus) Live() bool {
	return s == CallRinging || s == CallAnswered
}

type TranscriptSegment struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

type Call struct {
	ID              string              `json:"id"`
	TenantID        string              `json:"tenantId"`
	VendorCallID    string              `json:"vendorCallId"`
	Direction       string              `json:"direction"`
	From            string              `json:"from"`
	To              string              `json:"to"`
	Status          CallStatus          `json:"status"`
	DurationSeconds int                 `json:"durationSeconds"`
	Transcript      []TranscriptSegment `json:"transcript,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	ContactID       string              `json:"contactId,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}
