package domain

import "testing"

func TestMapVendorCallStatus(t *testing.T) {
	cases := map[string]CallStatus{
		"ringing":     CallRinging,
		"in-progress": CallAnswered,
		"completed":   CallCompleted,
		"busy":        CallBusy,
		"no-answer":   CallNoAnswer,
		"failed":      CallFailed,
		"canceled":    CallFailed,
		"queued":      CallRinging,
		"":            CallRinging,
		"COMPLETED":   CallCompleted,
	}
	for in, want := range cases {
		if got := MapVendorCallStatus(in); got != want {
			t.Fatalf("MapVendorCallStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestIdentityHasModule(t *testing.T) {
	id := Identity{TenantID: "t1", Modules: []string{"AI", "calls"}}
	if !id.HasModule("ai") {
		t.Fatalf("expected ai module")
	}
	if id.HasModule("websites") {
		t.Fatalf("did not expect websites module")
	}
}
