package protocol

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"kasocial/internal/models"
)

// EncodeParams describes the message to encode. Version is always the
// current protocol version; Timestamp defaults to now when zero.
type EncodeParams struct {
	Kind            models.MessageKind
	Content         *string
	Timestamp       int64
	ParentID        string
	Segment         *models.SegmentBlock
	PrevTxID        string
	LastSubscribeID string
}

// Encode builds and validates the wire bytes for a protocol message.
// Returns an error when the parameters describe an illegal message: the
// writer must never publish a payload the validator would reject.
func Encode(p EncodeParams) ([]byte, error) {
	payload := models.ContentPayload{
		Version:         models.ProtocolVersion,
		Kind:            p.Kind,
		Content:         p.Content,
		Timestamp:       p.Timestamp,
		ParentID:        p.ParentID,
		Segment:         p.Segment,
		PrevTxID:        p.PrevTxID,
		LastSubscribeID: p.LastSubscribeID,
	}
	if payload.Timestamp == 0 {
		payload.Timestamp = time.Now().Unix()
	}

	if errs := Validate(&payload); len(errs) > 0 {
		return nil, fmt.Errorf("invalid %s payload: %s", p.Kind, errs[0])
	}

	data, err := json.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// Decode extracts a protocol payload from a raw transaction envelope.
// Returns nil when the transaction is not ours: no output carries a
// recognizable payload, the JSON is malformed, or the version or kind is
// unknown. Arbitrary ledger content must never cause an error here.
func Decode(env *models.TransactionEnvelope) *models.ContentPayload {
	if env == nil {
		return nil
	}
	for i := range env.Outputs {
		script := env.Outputs[i].ScriptBytes
		if len(script) == 0 && env.Outputs[i].ScriptHex != "" {
			decoded, err := hex.DecodeString(env.Outputs[i].ScriptHex)
			if err != nil {
				continue
			}
			script = decoded
		}
		if payload := decodeScript(script); payload != nil {
			return payload
		}
	}
	return nil
}

// decodeScript tries to read a payload out of one output's script bytes.
// The payload is the JSON object embedded in the script; surrounding opcode
// bytes are ignored by slicing from the first '{' to the last '}'.
func decodeScript(script []byte) *models.ContentPayload {
	start := bytes.IndexByte(script, '{')
	end := bytes.LastIndexByte(script, '}')
	if start < 0 || end <= start {
		return nil
	}

	var payload models.ContentPayload
	if err := json.Unmarshal(script[start:end+1], &payload); err != nil {
		return nil
	}
	if payload.Version != models.ProtocolVersion || !payload.Kind.Known() {
		return nil
	}
	if payload.Timestamp <= 0 {
		return nil
	}
	return &payload
}

// DecodeMessage decodes an envelope and pairs the result with its
// transaction context. Returns nil when the envelope is not a protocol
// message.
func DecodeMessage(env *models.TransactionEnvelope, sender string) *models.DecodedMessage {
	payload := Decode(env)
	if payload == nil {
		return nil
	}
	return &models.DecodedMessage{
		TxID:        env.ID,
		Sender:      sender,
		ConfirmedAt: env.ConfirmedAt,
		Payload:     payload,
	}
}
