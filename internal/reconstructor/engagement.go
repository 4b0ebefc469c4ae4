package reconstructor

import (
	"context"
	"sort"

	"kasocial/internal/models"
)

// Engagement counts likes and comments attributed to one content item. The
// scan runs over the content author's history, where engagement messages
// land, matching on the parent reference.
func (r *Reconstructor) Engagement(ctx context.Context, author, targetID string) (models.Engagement, error) {
	var eng models.Engagement

	envs, err := r.fetchHistory(ctx, author)
	if err != nil && len(envs) == 0 {
		return eng, err
	}

	for _, msg := range r.decodeHistory(author, envs) {
		p := msg.Payload
		if p.ParentID != targetID {
			continue
		}
		switch p.Kind {
		case models.KindLike:
			eng.Likes++
		case models.KindComment:
			eng.Comments++
		}
	}
	return eng, nil
}

// Comments returns the comments attached to one content item, oldest first,
// each classified as replying to a post or a story by re-decoding the
// parent transaction.
func (r *Reconstructor) Comments(ctx context.Context, author, targetID string) ([]models.Comment, error) {
	envs, err := r.fetchHistory(ctx, author)
	if err != nil && len(envs) == 0 {
		return nil, err
	}

	parentKind := r.resolveParentKind(ctx, targetID)
	envByID := make(map[string]*models.TransactionEnvelope, len(envs))
	for i := range envs {
		envByID[envs[i].ID] = &envs[i]
	}

	var comments []models.Comment
	for _, msg := range r.decodeHistory(author, envs) {
		p := msg.Payload
		if p.Kind != models.KindComment || p.ParentID != targetID {
			continue
		}
		commenter := ""
		if env, ok := envByID[msg.TxID]; ok {
			if sender, err := r.fetcher.SenderAddress(ctx, env); err == nil {
				commenter = sender
			}
		}
		comments = append(comments, models.Comment{
			TxID:       msg.TxID,
			Author:     commenter,
			Content:    p.Text(),
			ParentID:   targetID,
			ParentKind: parentKind,
			Timestamp:  p.Timestamp,
			Confirmed:  msg.ConfirmedAt,
		})
	}

	sort.Slice(comments, func(i, j int) bool {
		return comments[i].Timestamp < comments[j].Timestamp
	})
	return comments, nil
}

// Likes returns the like events attached to one content item.
func (r *Reconstructor) Likes(ctx context.Context, author, targetID string) ([]models.Like, error) {
	envs, err := r.fetchHistory(ctx, author)
	if err != nil && len(envs) == 0 {
		return nil, err
	}

	parentKind := r.resolveParentKind(ctx, targetID)

	var likes []models.Like
	for _, msg := range r.decodeHistory(author, envs) {
		p := msg.Payload
		if p.Kind != models.KindLike || p.ParentID != targetID {
			continue
		}
		likes = append(likes, models.Like{
			TxID:       msg.TxID,
			ParentID:   targetID,
			ParentKind: parentKind,
			Timestamp:  p.Timestamp,
		})
	}
	return likes, nil
}

// Posts returns the address's single-transaction posts, newest first.
func (r *Reconstructor) Posts(ctx context.Context, address string, limit int) ([]models.Post, error) {
	envs, err := r.fetchHistory(ctx, address)
	if err != nil && len(envs) == 0 {
		return nil, err
	}

	var posts []models.Post
	for _, msg := range r.decodeHistory(address, envs) {
		p := msg.Payload
		if p.Kind != models.KindPost {
			continue
		}
		posts = append(posts, models.Post{
			TxID:      msg.TxID,
			Author:    address,
			Content:   p.Text(),
			Timestamp: p.Timestamp,
			Confirmed: msg.ConfirmedAt,
		})
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].Timestamp > posts[j].Timestamp
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}
