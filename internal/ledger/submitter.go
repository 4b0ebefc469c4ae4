package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kasocial/internal/ledger/retry"
	"kasocial/internal/metrics"
)

// HTTPSubmitter implements Submitter against an external signing service.
// The service wraps the payload in a transaction, signs it with the wallet
// key it holds, broadcasts it, and returns the transaction id. Key material
// never enters this process.
type HTTPSubmitter struct {
	signerURL  string
	httpClient *http.Client
}

// NewHTTPSubmitter creates a submitter for the given signer endpoint.
func NewHTTPSubmitter(signerURL string, timeout time.Duration) *HTTPSubmitter {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSubmitter{
		signerURL:  signerURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Payload []byte `json:"payload"`
}

type submitResponse struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error,omitempty"`
}

// Submit publishes one payload and returns the resulting transaction id.
// Retrying is the caller's concern; a single call makes a single attempt.
func (s *HTTPSubmitter) Submit(ctx context.Context, payload []byte) (string, error) {
	body, err := json.Marshal(submitRequest{Payload: payload})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.signerURL+"/submit", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("submit payload: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", retry.Transient(fmt.Errorf("signer status %d: %s", resp.StatusCode, raw))
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("signer status %d: %s", resp.StatusCode, raw)
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("signer rejected payload: %s", result.Error)
	}
	if result.TransactionID == "" {
		return "", fmt.Errorf("signer returned no transaction id")
	}

	metrics.SegmentsSubmitted.Inc()
	return result.TransactionID, nil
}
