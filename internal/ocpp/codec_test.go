package ocpp

import "testing"

func TestDecodeCall(t *testing.T) {
	f, err := Decode([]byte(`[2,"m1","BootNotification",{"chargePointVendor":"Sim","chargePointModel":"X"}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Type != Call || f.MessageID != "m1" || f.Action != ActionBootNotification {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestDecodeCallResult(t *testing.T) {
	f, err := Decode([]byte(`[3,"m1",{"status":"Accepted"}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Type != CallResult || f.MessageID != "m1" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestDecodeCallErrorRejectsWrongLength(t *testing.T) {
	_, err := Decode([]byte(`[4,"m1","SomeError"]`))
	if err == nil {
		t.Fatal("expected error for short CALLERROR frame")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`[9,"m1",{}]`))
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestDecodeRejectsNonArray(t *testing.T) {
	_, err := Decode([]byte(`{"foo":"bar"}`))
	if err == nil {
		t.Fatal("expected error for non-array frame")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := EncodeCall("m2", ActionHeartbeat, HeartbeatRequest{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Action != ActionHeartbeat || f.MessageID != "m2" {
		t.Fatalf("round trip mismatch: %+v", f)
	}
}

func TestEncodeCallNilPayloadIsEmptyObject(t *testing.T) {
	raw, err := EncodeCall("m3", ActionHeartbeat, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(f.Payload) != "{}" {
		t.Fatalf("expected empty object payload, got %s", f.Payload)
	}
}
