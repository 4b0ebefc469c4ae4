package protocol

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"kasocial/internal/models"
)

func envelopeWithScript(script []byte) *models.TransactionEnvelope {
	return &models.TransactionEnvelope{
		ID:          validTxID('0'),
		ConfirmedAt: time.Now(),
		Outputs: []models.TxOutput{
			{ScriptBytes: script},
		},
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	data, err := Encode(EncodeParams{
		Kind:    models.KindPost,
		Content: strPtr("hello ledger"),
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	payload := Decode(envelopeWithScript(data))
	if payload == nil {
		t.Fatal("Expected decoded payload, got nil")
	}
	if payload.Kind != models.KindPost {
		t.Errorf("Expected kind post, got: %s", payload.Kind)
	}
	if payload.Text() != "hello ledger" {
		t.Errorf("Expected content round-trip, got: %q", payload.Text())
	}
	if payload.Version != models.ProtocolVersion {
		t.Errorf("Expected version %s, got: %s", models.ProtocolVersion, payload.Version)
	}
}

func TestEncode_RejectsInvalid(t *testing.T) {
	_, err := Encode(EncodeParams{
		Kind:    models.KindPost,
		Content: strPtr(strings.Repeat("a", MaxPostChars+1)),
	})
	if err == nil {
		t.Error("Expected error for oversized post")
	}

	_, err = Encode(EncodeParams{Kind: models.KindLike})
	if err == nil {
		t.Error("Expected error for like without parent")
	}
}

func TestDecode_IgnoresForeignTransactions(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("76a914deadbeef88ac"),     // plain script, no JSON
		[]byte(`{"foo":"bar"}`),         // JSON but not a protocol payload
		[]byte(`{"version":"1","type"`), // truncated JSON
		[]byte(`{"version":"9","type":"post","content":"x","timestamp":1720000000}`), // wrong version
		[]byte(`{"version":"1","type":"poke","content":"x","timestamp":1720000000}`), // unknown kind
	}

	for _, script := range cases {
		if payload := Decode(envelopeWithScript(script)); payload != nil {
			t.Errorf("Expected nil for script %q, got: %+v", script, payload)
		}
	}
}

func TestDecode_PayloadEmbeddedInScript(t *testing.T) {
	// Payload bytes wrapped in surrounding opcode bytes
	inner := `{"version":"1","type":"post","content":"embedded","timestamp":1720000000}`
	script := append([]byte{0x00, 0x63, 0x04}, []byte(inner)...)
	script = append(script, 0x68, 0xac)

	payload := Decode(envelopeWithScript(script))
	if payload == nil {
		t.Fatal("Expected embedded payload to decode")
	}
	if payload.Text() != "embedded" {
		t.Errorf("Expected embedded content, got: %q", payload.Text())
	}
}

func TestDecode_HexFallback(t *testing.T) {
	inner := `{"version":"1","type":"post","content":"from hex","timestamp":1720000000}`
	env := &models.TransactionEnvelope{
		ID:      validTxID('1'),
		Outputs: []models.TxOutput{{ScriptHex: hex.EncodeToString([]byte(inner))}},
	}

	payload := Decode(env)
	if payload == nil {
		t.Fatal("Expected payload from hex script")
	}
	if payload.Text() != "from hex" {
		t.Errorf("Expected hex content, got: %q", payload.Text())
	}
}

func TestDecode_ScansAllOutputs(t *testing.T) {
	inner := `{"version":"1","type":"post","content":"second output","timestamp":1720000000}`
	env := &models.TransactionEnvelope{
		ID: validTxID('2'),
		Outputs: []models.TxOutput{
			{ScriptBytes: []byte("76a914feedface88ac")},
			{ScriptBytes: []byte(inner)},
		},
	}

	payload := Decode(env)
	if payload == nil {
		t.Fatal("Expected payload from second output")
	}
	if payload.Text() != "second output" {
		t.Errorf("Expected second output content, got: %q", payload.Text())
	}
}

func TestEncode_StorySegmentWireShape(t *testing.T) {
	data, err := Encode(EncodeParams{
		Kind:     models.KindStory,
		Content:  strPtr(strings.Repeat("s", 80)),
		ParentID: validTxID('a'),
		Segment:  &models.SegmentBlock{Segment: 2, Total: 3},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Encoded payload is not valid JSON: %v", err)
	}
	seg, ok := wire["segment"].(map[string]any)
	if !ok {
		t.Fatal("Expected segment block on wire")
	}
	if seg["segment"] != float64(2) || seg["total"] != float64(3) {
		t.Errorf("Unexpected segment block: %+v", seg)
	}
	if wire["parent_id"] != validTxID('a') {
		t.Errorf("Expected parent_id on wire, got: %v", wire["parent_id"])
	}
}
