package reconstructor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"kasocial/internal/metrics"
	"kasocial/internal/models"
)

// batchGroupSize bounds outbound concurrency for multi-address lookups.
// Each group is awaited fully before the next starts.
const batchGroupSize = 10

// BuildProfile replays an address's full history into a profile. Returns
// ErrNotRegistered when the history carries no start message; any other
// error means the history itself could not be fetched.
func (r *Reconstructor) BuildProfile(ctx context.Context, address string) (*models.UserProfile, error) {
	if cached, ok := r.profiles.Get(address); ok {
		return cached, nil
	}

	envs, err := r.fetchHistory(ctx, address)
	if err != nil && len(envs) == 0 {
		return nil, err
	}
	msgs := r.decodeHistory(address, envs)
	r.resolveIncomingSenders(ctx, address, envs, msgs)

	profile := replayProfile(address, msgs)
	if profile == nil {
		return nil, ErrNotRegistered
	}

	metrics.ProfilesBuilt.Inc()
	r.profiles.Set(address, profile)
	return profile, nil
}

// replayProfile folds decoded messages into a profile. The registration
// message anchors identity; without one the address is simply not a user.
func replayProfile(address string, msgs []*models.DecodedMessage) *models.UserProfile {
	var registration *models.DecodedMessage
	var lastActivity *models.DecodedMessage
	var lastSubscribe *models.DecodedMessage
	contentCount := 0

	// One logical edge per counterpart address, latest timestamp wins.
	following := map[string]*models.Subscription{}
	followers := map[string]*models.Subscription{}

	for _, msg := range msgs {
		p := msg.Payload

		// A subscribe/unsubscribe naming this address was authored by
		// someone else: it is an incoming follow event, not own activity.
		incoming := (p.Kind == models.KindSubscribe || p.Kind == models.KindUnsubscribe) &&
			p.Text() == address
		if incoming {
			key := msg.Sender
			if key == "" {
				// Sender derivation failed; the event still counts but
				// cannot be deduplicated against the same follower.
				key = msg.TxID
			}
			mergeEdge(followers, key, msg.TxID, msg.Sender, p)
			continue
		}

		if lastActivity == nil || p.Timestamp > lastActivity.Payload.Timestamp {
			lastActivity = msg
		}

		switch p.Kind {
		case models.KindStart:
			// First registration wins; later ones are ignored.
			if registration == nil || p.Timestamp < registration.Payload.Timestamp {
				registration = msg
			}

		case models.KindPost:
			contentCount++

		case models.KindStory:
			if p.Segment != nil && p.Segment.Segment == 1 {
				contentCount++
			}

		case models.KindSubscribe, models.KindUnsubscribe:
			mergeEdge(following, p.Text(), msg.TxID, address, p)
			if lastSubscribe == nil || p.Timestamp > lastSubscribe.Payload.Timestamp {
				lastSubscribe = msg
			}
		}
	}

	if registration == nil {
		return nil
	}

	var body models.ProfileBody
	if err := json.Unmarshal([]byte(registration.Payload.Text()), &body); err != nil {
		slog.Debug("Registration body unreadable", "address", address, "tx_id", registration.TxID)
	}

	profile := &models.UserProfile{
		Address:          address,
		Nickname:         body.Nickname,
		Avatar:           body.Avatar,
		RegistrationTxID: registration.TxID,
		PostCount:        contentCount,
		FollowingCount:   countActive(following),
		FollowerCount:    countActive(followers),
		RegisteredAt:     time.Unix(registration.Payload.Timestamp, 0).UTC(),
	}
	if lastActivity != nil {
		profile.LastActivityTxID = lastActivity.TxID
		profile.LastActiveAt = time.Unix(lastActivity.Payload.Timestamp, 0).UTC()
	}
	if lastSubscribe != nil {
		profile.LastSubscribeTxID = lastSubscribe.TxID
	}
	return profile
}

// resolveIncomingSenders fills in the author of incoming follow events so
// repeated subscribe/unsubscribe cycles from one follower collapse to a
// single edge. Derivation failures are logged and left blank.
func (r *Reconstructor) resolveIncomingSenders(ctx context.Context, address string, envs []models.TransactionEnvelope, msgs []*models.DecodedMessage) {
	envByID := make(map[string]*models.TransactionEnvelope, len(envs))
	for i := range envs {
		envByID[envs[i].ID] = &envs[i]
	}

	for _, msg := range msgs {
		p := msg.Payload
		if p.Kind != models.KindSubscribe && p.Kind != models.KindUnsubscribe {
			continue
		}
		if p.Text() != address || msg.Sender != "" {
			continue
		}
		env, ok := envByID[msg.TxID]
		if !ok {
			continue
		}
		sender, err := r.fetcher.SenderAddress(ctx, env)
		if err != nil {
			slog.Debug("Sender derivation failed", "tx_id", msg.TxID, "error", err)
			continue
		}
		msg.Sender = sender
	}
}

// mergeEdge applies latest-timestamp-wins dedup for one follow edge.
func mergeEdge(edges map[string]*models.Subscription, key, txID, owner string, p *models.ContentPayload) {
	existing, ok := edges[key]
	if ok && existing.Timestamp >= p.Timestamp {
		return
	}
	edges[key] = &models.Subscription{
		Subscriber: owner,
		Target:     p.Text(),
		Timestamp:  p.Timestamp,
		Active:     p.Kind == models.KindSubscribe,
		TxID:       txID,
		UpdatedAt:  time.Unix(p.Timestamp, 0).UTC(),
	}
}

func countActive(edges map[string]*models.Subscription) int {
	n := 0
	for _, e := range edges {
		if e.Active {
			n++
		}
	}
	return n
}

// Subscriptions returns the address's current outgoing follow edges after
// latest-timestamp-wins dedup, including inactive (unfollowed) edges.
func (r *Reconstructor) Subscriptions(ctx context.Context, address string) ([]models.Subscription, error) {
	envs, err := r.fetchHistory(ctx, address)
	if err != nil && len(envs) == 0 {
		return nil, err
	}

	edges := map[string]*models.Subscription{}
	for _, msg := range r.decodeHistory(address, envs) {
		p := msg.Payload
		if p.Kind != models.KindSubscribe && p.Kind != models.KindUnsubscribe {
			continue
		}
		if p.Text() == address {
			continue // incoming edge, not ours
		}
		mergeEdge(edges, p.Text(), msg.TxID, address, p)
	}

	subs := make([]models.Subscription, 0, len(edges))
	for _, e := range edges {
		subs = append(subs, *e)
	}
	return subs, nil
}

// Followees returns the target addresses the given address currently follows.
func (r *Reconstructor) Followees(ctx context.Context, address string) ([]string, error) {
	subs, err := r.Subscriptions(ctx, address)
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(subs))
	for _, s := range subs {
		if s.Active {
			targets = append(targets, s.Target)
		}
	}
	return targets, nil
}

// BuildProfiles looks up many profiles in fixed-size concurrent groups,
// awaiting each group fully before the next starts. The batch returns
// partial success: unregistered or failed addresses land in Failures and
// never sink the rest.
func (r *Reconstructor) BuildProfiles(ctx context.Context, addresses []string) *models.ProfileBatch {
	batch := &models.ProfileBatch{}
	var mu sync.Mutex

	for start := 0; start < len(addresses); start += batchGroupSize {
		end := start + batchGroupSize
		if end > len(addresses) {
			end = len(addresses)
		}

		var wg sync.WaitGroup
		for _, addr := range addresses[start:end] {
			wg.Add(1)
			go func(addr string) {
				defer wg.Done()
				profile, err := r.BuildProfile(ctx, addr)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					batch.Failures = append(batch.Failures, models.BatchFailure{
						Key:     addr,
						Message: err.Error(),
					})
					return
				}
				batch.Profiles = append(batch.Profiles, profile)
			}(addr)
		}
		wg.Wait()
	}

	return batch
}
