// Package reconstructor replays raw ledger history into social domain
// entities: profiles, subscriptions, stories and engagement counts. Every
// derivation is best-effort over available data; a single undecodable or
// unfetchable transaction is skipped and logged, never aborting a scan.
package reconstructor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kasocial/internal/cache"
	"kasocial/internal/ledger"
	"kasocial/internal/metrics"
	"kasocial/internal/models"
	"kasocial/internal/protocol"
)

// MaxChainSkewSeconds bounds how far a segment's timestamp may fall behind
// its predecessor before the chain is treated as broken. Absorbs ledger
// confirmation jitter; anything larger looks forged.
const MaxChainSkewSeconds = 60

// historyPageSize is the fetch page used when walking a full address history.
const historyPageSize = 50

// maxHistoryPages caps a history walk so one hot address cannot pin a scan.
const maxHistoryPages = 40

// ErrNotRegistered reports that an address has no registration message.
// A normal not-found outcome, not a failure.
var ErrNotRegistered = errors.New("reconstructor: address is not registered")

// ErrNotStory reports that the referenced transaction is not the first
// segment of a story.
var ErrNotStory = errors.New("reconstructor: transaction is not a story's first segment")

// Reconstructor derives domain entities from raw transaction history.
type Reconstructor struct {
	fetcher ledger.Fetcher

	profiles *cache.Cache[*models.UserProfile]
	stories  *cache.Cache[*models.Story]
}

// New creates a reconstructor with the given adapter and cache TTL.
func New(fetcher ledger.Fetcher, ttl time.Duration) *Reconstructor {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &Reconstructor{
		fetcher:  fetcher,
		profiles: cache.New[*models.UserProfile]("profiles", 512, ttl),
		stories:  cache.New[*models.Story]("stories", 512, ttl),
	}
}

// fetchHistory walks an address's full transaction history in pages.
// A page failure after retries ends the walk with whatever was collected so
// far plus the error; callers decide whether partial data is usable.
func (r *Reconstructor) fetchHistory(ctx context.Context, address string) ([]models.TransactionEnvelope, error) {
	var all []models.TransactionEnvelope

	for page := 0; page < maxHistoryPages; page++ {
		batch, err := r.fetcher.TransactionsByAddress(ctx, address, historyPageSize, page*historyPageSize)
		if err != nil {
			return all, err
		}
		all = append(all, batch...)
		if len(batch) < historyPageSize {
			return all, nil
		}
	}

	slog.Warn("History walk hit page cap", "address", address, "transactions", len(all))
	return all, nil
}

// decodeHistory decodes every protocol message in a set of envelopes
// authored from the given address's history. Undecodable or invalid
// transactions are counted and skipped.
func (r *Reconstructor) decodeHistory(address string, envs []models.TransactionEnvelope) []*models.DecodedMessage {
	msgs := make([]*models.DecodedMessage, 0, len(envs))
	for i := range envs {
		payload := protocol.Decode(&envs[i])
		if payload == nil {
			metrics.PayloadsSkipped.Inc()
			continue
		}
		if errs := protocol.Validate(payload); len(errs) > 0 {
			metrics.PayloadsSkipped.Inc()
			slog.Debug("Skipping invalid protocol message",
				"tx_id", envs[i].ID,
				"address", address,
				"first_error", errs[0].String(),
			)
			continue
		}
		metrics.PayloadsDecoded.Inc()
		msgs = append(msgs, &models.DecodedMessage{
			TxID:        envs[i].ID,
			ConfirmedAt: envs[i].ConfirmedAt,
			Payload:     payload,
		})
	}
	return msgs
}

// resolveParentKind classifies a like/comment target by re-decoding the
// parent transaction's own payload.
func (r *Reconstructor) resolveParentKind(ctx context.Context, parentID string) models.ParentKind {
	env, err := r.fetcher.TransactionByID(ctx, parentID)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			slog.Debug("Parent lookup failed", "parent_id", parentID, "error", err)
		}
		return models.ParentUnknown
	}
	payload := protocol.Decode(env)
	if payload == nil {
		return models.ParentUnknown
	}
	switch payload.Kind {
	case models.KindPost:
		return models.ParentPost
	case models.KindStory:
		return models.ParentStory
	}
	return models.ParentUnknown
}
