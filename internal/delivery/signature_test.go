package delivery

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"event_type":"publish.succeeded","item_id":"abc"}`)
	sig := Sign(payload, "topsecret")
	if sig == "" {
		t.Fatal("expected non-empty signature")
	}
	if !Verify(payload, "topsecret", sig) {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"event_type":"publish.succeeded"}`)
	sig := Sign(payload, "topsecret")

	tampered := []byte(`{"event_type":"publish.failed"}`)
	if Verify(tampered, "topsecret", sig) {
		t.Fatal("expected tampered payload to fail verification")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"event_type":"publish.succeeded"}`)
	sig := Sign(payload, "topsecret")
	if Verify(payload, "othersecret", sig) {
		t.Fatal("expected wrong secret to fail verification")
	}
}

func TestSignIsDeterministic(t *testing.T) {
	payload := []byte("same bytes")
	if Sign(payload, "k") != Sign(payload, "k") {
		t.Fatal("expected identical signatures for identical input")
	}
}
