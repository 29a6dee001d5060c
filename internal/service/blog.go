// Package service contains the application service gating blog writes
// through the rate limiter and routing them via the transport selector.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Kazama-Suichiku/blogstore/internal/comments"
	"github.com/Kazama-Suichiku/blogstore/internal/errs"
	"github.com/Kazama-Suichiku/blogstore/internal/limiter"
	"github.com/Kazama-Suichiku/blogstore/internal/model"
	"github.com/Kazama-Suichiku/blogstore/internal/store"
)

const (
	articlesPath = "articles"
	commentsPath = "comments"
)

// Blog exposes the operations the UI calls. It is constructed once at
// process start and holds the per-session singletons (cached transport
// mode inside the selector, limiter instances) by reference.
type Blog struct {
	store      store.Client
	lim        *limiter.Limiter
	log        *zap.Logger
	maxNesting int

	newID func() string
	now   func() time.Time
}

// NewBlog constructs the blog service.
func NewBlog(st store.Client, lim *limiter.Limiter, maxNesting int, log *zap.Logger) *Blog {
	if maxNesting <= 0 {
		maxNesting = comments.DefaultMaxNestingLevel
	}
	return &Blog{
		store:      st,
		lim:        lim,
		log:        log,
		maxNesting: maxNesting,
		newID:      comments.NewCommentID,
		now:        time.Now,
	}
}

// rateLimited wraps a blocked decision so callers can surface the
// retry-after and match with errors.Is(err, errs.ErrRateLimited).
func rateLimited(d limiter.Decision) error {
	return fmt.Errorf("%w: retry after %s", errs.ErrRateLimited, d.RetryAfter)
}

// acquire gates one named action through the limiter.
func (b *Blog) acquire(action string) error {
	d, err := b.lim.TryAcquire(action)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return rateLimited(d)
	}
	return nil
}

// PublishArticle stores a new article under its id, gated by the
// articlePublish limit.
func (b *Blog) PublishArticle(ctx context.Context, a model.Article) error {
	if a.ID == "" || a.Title == "" {
		return errors.New("validation: empty article id/title")
	}
	if err := b.acquire("articlePublish"); err != nil {
		return err
	}
	if a.Date == 0 {
		a.Date = b.now().UnixMilli()
	}
	return b.store.Set(ctx, articlesPath+"/"+a.ID, a)
}

// UpdateArticle applies a partial update to an existing article.
func (b *Blog) UpdateArticle(ctx context.Context, id string, partial map[string]any) error {
	if id == "" || len(partial) == 0 {
		return errors.New("validation: empty article id/patch")
	}
	return b.store.Update(ctx, articlesPath+"/"+id, partial)
}

// DeleteArticle removes the article and, best-effort, every comment
// that belonged to it.
func (b *Blog) DeleteArticle(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("validation: empty article id")
	}
	if err := b.store.Delete(ctx, articlesPath+"/"+id); err != nil {
		return err
	}
	list, err := b.loadComments(ctx)
	if err != nil {
		// The article itself is gone; orphaned comments are cleanup,
		// not a failed delete.
		b.log.Warn("article comments not cleaned up", zap.String("article", id), zap.Error(err))
		return nil
	}
	var keys []string
	for _, c := range list {
		if c.ArticleID == id {
			keys = append(keys, c.Key)
		}
	}
	b.deleteKeys(ctx, keys)
	return nil
}

// AttachImage appends an image reference to an article, gated by the
// upload limit.
func (b *Blog) AttachImage(ctx context.Context, articleID, ref string) error {
	if articleID == "" || ref == "" {
		return errors.New("validation: empty article id/image ref")
	}
	if err := b.acquire("upload"); err != nil {
		return err
	}
	a, err := b.Article(ctx, articleID)
	if err != nil {
		return err
	}
	a.Images = append(a.Images, ref)
	return b.store.Update(ctx, articlesPath+"/"+articleID, map[string]any{"images": a.Images})
}

// Article fetches one article by id.
func (b *Blog) Article(ctx context.Context, id string) (model.Article, error) {
	raw, err := b.store.Get(ctx, articlesPath+"/"+id)
	if err != nil {
		return model.Article{}, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return model.Article{}, errs.ErrNotFound
	}
	var a model.Article
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.Article{}, fmt.Errorf("decode article: %w", err)
	}
	return a, nil
}

// Articles fetches every article, newest first.
func (b *Blog) Articles(ctx context.Context) ([]model.Article, error) {
	raw, err := b.store.Get(ctx, articlesPath)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m map[string]model.Article
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	list := make([]model.Article, 0, len(m))
	for _, a := range m {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Date > list[j].Date })
	return list, nil
}

// AddComment persists a new comment, gated by the comment limit. The
// returned comment is nil when the reply target no longer exists: the
// submission is a no-op and the next subscription refresh resolves the
// stale view. Replies below the nesting limit only.
func (b *Blog) AddComment(ctx context.Context, articleID, parentID, name, text string) (*model.Comment, error) {
	if articleID == "" || name == "" || text == "" {
		return nil, errors.New("validation: empty article id/name/text")
	}
	if err := b.acquire("comment"); err != nil {
		return nil, err
	}

	if parentID != "" {
		list, err := b.loadComments(ctx)
		if err != nil {
			return nil, err
		}
		tree := comments.BuildIndex(list)
		parent, ok := tree.Get(parentID)
		if !ok {
			b.log.Warn("reply target missing, dropping submission",
				zap.String("parent", parentID),
				zap.String("article", articleID),
			)
			return nil, nil
		}
		if parent.ArticleID != articleID {
			return nil, errors.New("validation: parent belongs to another article")
		}
		if depth, _ := tree.Depth(parentID); depth >= b.maxNesting {
			return nil, errs.ErrDepthExceeded
		}
	}

	c := model.Comment{
		ID:        b.newID(),
		ArticleID: articleID,
		ParentID:  parentID,
		Name:      name,
		Text:      text,
		Date:      b.now().UnixMilli(),
	}
	key, err := b.store.Push(ctx, commentsPath, c)
	if err != nil {
		return nil, err
	}
	c.Key = key
	return &c, nil
}

// DeleteComment removes a comment together with every descendant.
// It returns how many deletes were attempted; an unknown id is a no-op
// reported as zero. Each key is attempted independently: one failure is
// logged and does not stop the rest.
func (b *Blog) DeleteComment(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, errors.New("validation: empty comment id")
	}
	list, err := b.loadComments(ctx)
	if err != nil {
		return 0, err
	}
	keys := comments.BuildIndex(list).CascadeDeleteSet(id)
	if keys == nil {
		b.log.Warn("delete target missing, nothing to do", zap.String("comment", id))
		return 0, nil
	}
	b.deleteKeys(ctx, keys)
	return len(keys), nil
}

// deleteKeys best-effort deletes comment keys, one operation per key.
func (b *Blog) deleteKeys(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := b.store.Delete(ctx, commentsPath+"/"+key); err != nil {
			b.log.Warn("comment delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// RenderComments returns the bounded-depth comment nesting for one
// article, in source order.
func (b *Blog) RenderComments(ctx context.Context, articleID string) ([]comments.Node, error) {
	list, err := b.loadComments(ctx)
	if err != nil {
		return nil, err
	}
	return comments.BuildIndex(list).Render(articleID, "", 0, b.maxNesting), nil
}

// WatchComments subscribes to the comment collection and yields the
// rebuilt nesting for one article on every change. Cancel ctx or close
// the returned subscription to stop.
func (b *Blog) WatchComments(ctx context.Context, articleID string) (<-chan []comments.Node, *store.Subscription, error) {
	sub, err := b.store.Subscribe(ctx, commentsPath)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan []comments.Node, 1)
	go func() {
		defer close(out)
		for raw := range sub.Snapshots() {
			list, err := comments.DecodeSnapshot(raw)
			if err != nil {
				b.log.Warn("bad comment snapshot", zap.Error(err))
				continue
			}
			nodes := comments.BuildIndex(list).Render(articleID, "", 0, b.maxNesting)
			select {
			case out <- nodes:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, sub, nil
}

// AllowLogin gates a login attempt for the external auth provider.
// It returns the blocked decision rather than an error so the caller
// can render the retry-after.
func (b *Blog) AllowLogin() (limiter.Decision, error) {
	return b.lim.TryAcquire("login")
}

// ResetLimit clears the window and any block for one action name.
func (b *Blog) ResetLimit(action string) error {
	return b.lim.Reset(action)
}

func (b *Blog) loadComments(ctx context.Context) ([]model.Comment, error) {
	raw, err := b.store.Get(ctx, commentsPath)
	if err != nil {
		return nil, err
	}
	return comments.DecodeSnapshot(raw)
}
