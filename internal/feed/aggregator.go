// Package feed builds filtered, paginated, cached views over reconstructed
// social content: personal, global, single-author, trending and by-type.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"kasocial/internal/cache"
	"kasocial/internal/ledger"
	"kasocial/internal/metrics"
	"kasocial/internal/models"
	"kasocial/internal/protocol"
	"kasocial/internal/reconstructor"
)

// overFetchFactor is how many raw candidates are pulled per requested item
// to absorb decode and filter losses.
const overFetchFactor = 3

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Aggregator produces feed views. Each view+parameter combination is cached
// as an immutable snapshot with a short TTL; callers may force a bypass.
type Aggregator struct {
	fetcher ledger.Fetcher
	recon   *reconstructor.Reconstructor
	views   *cache.Cache[models.FeedPage]
}

// New creates an aggregator with the given view-cache TTL.
func New(fetcher ledger.Fetcher, recon *reconstructor.Reconstructor, ttl time.Duration) *Aggregator {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &Aggregator{
		fetcher: fetcher,
		recon:   recon,
		views:   cache.New[models.FeedPage]("feeds", 256, ttl),
	}
}

// Feed builds one page of the requested view. A fetch failure at the source
// fails the whole view; a per-item processing failure drops only that item.
func (a *Aggregator) Feed(ctx context.Context, req models.FeedRequest) (models.FeedPage, error) {
	req = normalize(req)
	key := cacheKey(req)

	if !req.Refresh {
		if page, ok := a.views.Get(key); ok {
			return page, nil
		}
	}

	start := time.Now()
	items, err := a.collect(ctx, req)
	if err != nil {
		return models.FeedPage{}, err
	}

	items = applyFilters(req, items)
	sortItems(req.View, items)

	page := paginate(req, items)
	a.views.Set(key, page)
	metrics.FeedBuildDuration.Observe(time.Since(start).Seconds())
	return page, nil
}

// normalize clamps pagination to sane bounds.
func normalize(req models.FeedRequest) models.FeedRequest {
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return req
}

// cacheKey derives the view-cache key from every request field but Refresh.
func cacheKey(req models.FeedRequest) string {
	kinds := make([]string, len(req.Kinds))
	for i, k := range req.Kinds {
		kinds[i] = string(k)
	}
	sort.Strings(kinds)
	return fmt.Sprintf("%s|%s|%s|%d|%d|%d",
		req.View, req.Address, strings.Join(kinds, ","), req.Since, req.Limit, req.Offset)
}

// collect gathers and classifies raw candidates for the view.
func (a *Aggregator) collect(ctx context.Context, req models.FeedRequest) ([]models.FeedItem, error) {
	want := overFetchFactor * (req.Limit + req.Offset)

	switch req.View {
	case models.ViewPersonal:
		followees, err := a.recon.Followees(ctx, req.Address)
		if err != nil {
			return nil, fmt.Errorf("resolve followees: %w", err)
		}
		authors := append(followees, req.Address)
		return a.collectByAuthors(ctx, authors, want)

	case models.ViewUser:
		return a.collectByAuthors(ctx, []string{req.Address}, want)

	case models.ViewGlobal, models.ViewTrending, models.ViewByType:
		envs, err := a.fetcher.RecentTransactions(ctx, want)
		if err != nil {
			return nil, fmt.Errorf("fetch recent transactions: %w", err)
		}
		return a.classify(ctx, "", envs), nil

	default:
		return nil, fmt.Errorf("unknown feed view %q", req.View)
	}
}

// collectByAuthors pulls each author's recent transactions and merges the
// classified results. A single author's fetch failure drops that author's
// items, not the view.
func (a *Aggregator) collectByAuthors(ctx context.Context, authors []string, want int) ([]models.FeedItem, error) {
	perAuthor := want
	if len(authors) > 1 {
		perAuthor = want/len(authors) + 1
	}

	var items []models.FeedItem
	failures := 0
	for _, author := range authors {
		envs, err := a.fetcher.TransactionsByAddress(ctx, author, perAuthor, 0)
		if err != nil {
			failures++
			slog.Warn("Author fetch failed, dropping from view", "author", author, "error", err)
			continue
		}
		items = append(items, a.classify(ctx, author, envs)...)
	}
	if failures == len(authors) && len(authors) > 0 {
		return nil, fmt.Errorf("every author fetch failed")
	}
	return items, nil
}

// classify decodes candidates into the tagged feed-item union and attaches
// live engagement counts. The author argument is the known history owner;
// empty for network-wide scans, where the sender is derived per item.
func (a *Aggregator) classify(ctx context.Context, author string, envs []models.TransactionEnvelope) []models.FeedItem {
	var items []models.FeedItem
	seenStories := map[string]bool{}

	for i := range envs {
		env := &envs[i]
		item, ok := a.classifyOne(ctx, author, env, seenStories)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items
}

func (a *Aggregator) classifyOne(ctx context.Context, author string, env *models.TransactionEnvelope, seenStories map[string]bool) (models.FeedItem, bool) {
	payload := protocolDecode(env)
	if payload == nil {
		return models.FeedItem{}, false
	}

	itemAuthor := author
	if itemAuthor == "" {
		derived, err := a.fetcher.SenderAddress(ctx, env)
		if err != nil {
			slog.Debug("Dropping item, sender unresolvable", "tx_id", env.ID, "error", err)
			return models.FeedItem{}, false
		}
		itemAuthor = derived
	}

	switch payload.Kind {
	case models.KindPost:
		item := models.FeedItem{
			Kind: models.FeedItemPost,
			Post: &models.Post{
				TxID:      env.ID,
				Author:    itemAuthor,
				Content:   payload.Text(),
				Timestamp: payload.Timestamp,
				Confirmed: env.ConfirmedAt,
			},
		}
		item.Engagement = a.engagementFor(ctx, itemAuthor, env.ID)
		return item, true

	case models.KindStory:
		// Only first segments surface in feeds, deduplicated by tx id.
		if payload.Segment == nil || payload.Segment.Segment != 1 || seenStories[env.ID] {
			return models.FeedItem{}, false
		}
		seenStories[env.ID] = true

		story, err := a.recon.BuildStory(ctx, env.ID)
		if err != nil {
			slog.Debug("Dropping story item", "tx_id", env.ID, "error", err)
			return models.FeedItem{}, false
		}
		item := models.FeedItem{Kind: models.FeedItemStory, Story: story}
		item.Engagement = a.engagementFor(ctx, story.Author, story.ID)
		return item, true

	case models.KindComment:
		item := models.FeedItem{
			Kind: models.FeedItemComment,
			Comment: &models.Comment{
				TxID:       env.ID,
				Author:     itemAuthor,
				Content:    payload.Text(),
				ParentID:   payload.ParentID,
				ParentKind: models.ParentUnknown,
				Timestamp:  payload.Timestamp,
				Confirmed:  env.ConfirmedAt,
			},
		}
		item.Engagement = a.engagementFor(ctx, itemAuthor, env.ID)
		return item, true
	}

	// Registrations, follows and likes are not feed content.
	return models.FeedItem{}, false
}

// protocolDecode decodes and validates one candidate, returning nil for
// anything that is not a legal protocol message.
func protocolDecode(env *models.TransactionEnvelope) *models.ContentPayload {
	payload := protocol.Decode(env)
	if payload == nil {
		metrics.PayloadsSkipped.Inc()
		return nil
	}
	if errs := protocol.Validate(payload); len(errs) > 0 {
		metrics.PayloadsSkipped.Inc()
		return nil
	}
	metrics.PayloadsDecoded.Inc()
	return payload
}

// engagementFor attaches live counts; a failed count is zero, not an error.
func (a *Aggregator) engagementFor(ctx context.Context, author, txID string) models.Engagement {
	eng, err := a.recon.Engagement(ctx, author, txID)
	if err != nil {
		slog.Debug("Engagement scan failed", "tx_id", txID, "error", err)
		return models.Engagement{}
	}
	return eng
}

// applyFilters drops items outside the request's author/timestamp/kind
// bounds.
func applyFilters(req models.FeedRequest, items []models.FeedItem) []models.FeedItem {
	kindSet := map[models.FeedItemKind]bool{}
	for _, k := range req.Kinds {
		kindSet[k] = true
	}

	filtered := items[:0]
	for _, item := range items {
		if req.View == models.ViewUser && item.Author() != req.Address {
			continue
		}
		if req.Since > 0 && item.Timestamp() < req.Since {
			continue
		}
		if req.View == models.ViewByType && len(kindSet) > 0 && !kindSet[item.Kind] {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}

// sortItems orders by recency descending, or engagement descending for the
// trending view with recency as the tie break.
func sortItems(view models.FeedView, items []models.FeedItem) {
	if view == models.ViewTrending {
		sort.SliceStable(items, func(i, j int) bool {
			si, sj := items[i].Engagement.Score(), items[j].Engagement.Score()
			if si != sj {
				return si > sj
			}
			return items[i].Timestamp() > items[j].Timestamp()
		})
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp() > items[j].Timestamp()
	})
}

// paginate applies offset/limit and reports hasMore when the returned page
// is exactly full-sized.
func paginate(req models.FeedRequest, items []models.FeedItem) models.FeedPage {
	if req.Offset >= len(items) {
		return models.FeedPage{Items: []models.FeedItem{}}
	}
	end := req.Offset + req.Limit
	if end > len(items) {
		end = len(items)
	}
	page := models.FeedPage{Items: items[req.Offset:end]}
	page.HasMore = len(page.Items) == req.Limit
	return page
}
