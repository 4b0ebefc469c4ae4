package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"kasocial/internal/ledger/retry"
	"kasocial/internal/metrics"
	"kasocial/internal/models"
)

// ErrNotFound is returned when the ledger has no transaction with the
// requested id. It is an expected outcome, not a fetch failure.
var ErrNotFound = errors.New("ledger: transaction not found")

// RESTClient implements Fetcher against a Kaspa REST API endpoint.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	strategy   retry.Strategy
	timeout    time.Duration
}

// NewRESTClient creates a fetcher for the given API base URL. Each request
// gets its own timeout, independent of any caller retry policy.
func NewRESTClient(baseURL string, strategy retry.Strategy, timeout time.Duration) *RESTClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		strategy:   strategy,
		timeout:    timeout,
	}
}

// restTransaction mirrors the REST API's transaction shape.
type restTransaction struct {
	TransactionID string `json:"transaction_id"`
	BlockTime     int64  `json:"block_time"` // milliseconds
	Inputs        []struct {
		PreviousOutpointHash  string `json:"previous_outpoint_hash"`
		PreviousOutpointIndex uint32 `json:"previous_outpoint_index"`
	} `json:"inputs"`
	Outputs []struct {
		Amount          uint64 `json:"amount"`
		ScriptPublicKey string `json:"script_public_key"`
		Address         string `json:"script_public_key_address"`
	} `json:"outputs"`
}

func (t *restTransaction) toEnvelope() models.TransactionEnvelope {
	env := models.TransactionEnvelope{
		ID:          t.TransactionID,
		ConfirmedAt: time.UnixMilli(t.BlockTime).UTC(),
	}
	for _, in := range t.Inputs {
		env.Inputs = append(env.Inputs, models.TxInput{
			PreviousTxID:  in.PreviousOutpointHash,
			PreviousIndex: in.PreviousOutpointIndex,
		})
	}
	for _, out := range t.Outputs {
		script, err := hex.DecodeString(out.ScriptPublicKey)
		if err != nil {
			script = nil
		}
		env.Outputs = append(env.Outputs, models.TxOutput{
			Amount:      out.Amount,
			ScriptBytes: script,
			ScriptHex:   out.ScriptPublicKey,
			Address:     out.Address,
		})
	}
	return env
}

// TransactionsByAddress returns the address's transactions, newest first.
func (c *RESTClient) TransactionsByAddress(ctx context.Context, address string, limit, offset int) ([]models.TransactionEnvelope, error) {
	endpoint := fmt.Sprintf("%s/addresses/%s/full-transactions?limit=%d&offset=%d",
		c.baseURL, url.PathEscape(address), limit, offset)

	var raw []restTransaction
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("fetch transactions for %s: %w", address, err)
	}

	envs := make([]models.TransactionEnvelope, 0, len(raw))
	for i := range raw {
		envs = append(envs, raw[i].toEnvelope())
	}
	metrics.TransactionsFetched.Add(float64(len(envs)))
	return envs, nil
}

// TransactionByID fetches a single transaction by its 64-hex id.
func (c *RESTClient) TransactionByID(ctx context.Context, id string) (*models.TransactionEnvelope, error) {
	endpoint := fmt.Sprintf("%s/transactions/%s", c.baseURL, url.PathEscape(id))

	var raw restTransaction
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch transaction %s: %w", id, err)
	}

	env := raw.toEnvelope()
	metrics.TransactionsFetched.Inc()
	return &env, nil
}

// RecentTransactions returns the newest network-wide transactions.
func (c *RESTClient) RecentTransactions(ctx context.Context, limit int) ([]models.TransactionEnvelope, error) {
	endpoint := fmt.Sprintf("%s/transactions?limit=%d", c.baseURL, limit)

	var raw []restTransaction
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("fetch recent transactions: %w", err)
	}

	envs := make([]models.TransactionEnvelope, 0, len(raw))
	for i := range raw {
		envs = append(envs, raw[i].toEnvelope())
	}
	metrics.TransactionsFetched.Add(float64(len(envs)))
	return envs, nil
}

// SenderAddress resolves the authoring address from the first input's
// previous outpoint. Placeholder derivation owned by this adapter; see the
// Fetcher interface note.
func (c *RESTClient) SenderAddress(ctx context.Context, env *models.TransactionEnvelope) (string, error) {
	if len(env.Inputs) == 0 {
		return "", fmt.Errorf("transaction %s has no inputs", env.ID)
	}
	in := env.Inputs[0]

	prev, err := c.TransactionByID(ctx, in.PreviousTxID)
	if err != nil {
		return "", fmt.Errorf("resolve sender of %s: %w", env.ID, err)
	}
	if int(in.PreviousIndex) >= len(prev.Outputs) {
		return "", fmt.Errorf("transaction %s input references missing output %d", env.ID, in.PreviousIndex)
	}
	return prev.Outputs[in.PreviousIndex].Address, nil
}

// getJSON performs one GET under the retry strategy and decodes the body.
func (c *RESTClient) getJSON(ctx context.Context, endpoint string, out any) error {
	start := time.Now()
	err := c.strategy.Execute(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return retry.Transient(fmt.Errorf("ledger API status %d: %s", resp.StatusCode, body))
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return fmt.Errorf("ledger API status %d: %s", resp.StatusCode, body)
		}

		return json.NewDecoder(resp.Body).Decode(out)
	})

	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		slog.Error("Ledger fetch failed", "endpoint", endpoint, "error", err)
	}
	return err
}
