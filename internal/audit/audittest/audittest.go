// Package audittest provides in-memory collaborators for audit logger tests.
package audittest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/modgate/backend/internal/models"
)

type Store struct {
	mu      sync.Mutex
	records []models.AuditRecord
	// Err, when set, is returned by every call.
	Err error
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Insert(ctx context.Context, rec *models.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *Store) match(r *models.AuditRecord, f models.AuditFilter) bool {
	if f.CommunityID != "" && r.CommunityID != f.CommunityID {
		return false
	}
	if f.ActorID != "" && r.ActorID != f.ActorID {
		return false
	}
	if f.TargetID != "" && (r.TargetID == nil || *r.TargetID != f.TargetID) {
		return false
	}
	if f.ActionType != "" && r.ActionType != f.ActionType {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.ActionsOnly && !r.IsAction() {
		return false
	}
	return true
}

func (s *Store) List(_ context.Context, f models.AuditFilter) ([]models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.AuditRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.match(&s.records[i], f) {
			out = append(out, s.records[i])
		}
		if f.Limit > 0 && uint64(len(out)) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, f models.AuditFilter) (int, error) {
	f.Limit = 0
	recs, err := s.List(ctx, f)
	return len(recs), err
}

func (s *Store) Statistics(_ context.Context, communityID string, since time.Time) (*models.AuditStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	stats := &models.AuditStatistics{ByType: map[string]int{}, ByModerator: map[string]int{}}
	for _, r := range s.records {
		if r.CommunityID != communityID || r.CreatedAt.Before(since) || !r.IsAction() {
			continue
		}
		stats.TotalActions++
		stats.ByType[r.ActionType]++
		stats.ByModerator[r.ActorID]++
	}
	return stats, nil
}

func (s *Store) DeleteCommunity(_ context.Context, communityID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	kept := s.records[:0]
	var n int64
	for _, r := range s.records {
		if r.CommunityID == communityID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return n, nil
}

// Records returns a copy of everything written, oldest first.
func (s *Store) Records() []models.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditRecord, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type Streams map[string]string

func (s Streams) AuditStream(_ context.Context, communityID string) (string, bool, error) {
	id, ok := s[communityID]
	return id, ok, nil
}

type Post struct {
	ChannelID string
	Embed     models.Embed
}

// Poster records posted embeds.
type Poster struct {
	mu      sync.Mutex
	Allowed bool
	Err     error
	posts   []Post
}

func (p *Poster) CanPost(context.Context, string, string) (bool, error) {
	return p.Allowed, nil
}

func (p *Poster) PostEmbed(_ context.Context, channelID string, embed models.Embed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.posts = append(p.posts, Post{ChannelID: channelID, Embed: embed})
	return nil
}

func (p *Poster) Posts() []Post {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Post, len(p.posts))
	copy(out, p.posts)
	return out
}
