// Package feed owns the in-memory feed for one viewer: the Feed Store, page fetching,
// pagination, optimistic mutations and the session lifecycle that ties them together.
package feed

import (
	"sync"

	"animelight/internal/models"
)

// Store is the single mutable feed list. All writes go through ReplaceAll, AppendPage or UpdatePost.
type Store struct {
	mu        sync.RWMutex
	posts     []models.Post
	version   uint64
	listeners []func(version uint64)
}

func NewStore() *Store {
	return &Store{posts: []models.Post{}}
}

// GetAll returns a copy of the current feed in display order.
func (s *Store) GetAll() []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Post, len(s.posts))
	for i, p := range s.posts {
		out[i] = p.Clone()
	}
	return out
}

// Get returns a copy of one post.
func (s *Store) Get(id string) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return models.Post{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// Version increases on every change to the list.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// OnChange registers fn to run after every change. fn runs outside the store lock.
func (s *Store) OnChange(fn func(version uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ReplaceAll discards the current list and installs posts.
func (s *Store) ReplaceAll(posts []models.Post) {
	s.mu.Lock()
	s.posts = make([]models.Post, 0, len(posts))
	for _, p := range posts {
		s.posts = append(s.posts, p.Clone())
	}
	v, listeners := s.bumpLocked()
	s.mu.Unlock()
	notify(listeners, v)
}

// AppendPage adds posts after the existing entries, keeping their order.
func (s *Store) AppendPage(posts []models.Post) {
	if len(posts) == 0 {
		return
	}
	s.mu.Lock()
	for _, p := range posts {
		s.posts = append(s.posts, p.Clone())
	}
	v, listeners := s.bumpLocked()
	s.mu.Unlock()
	notify(listeners, v)
}

// UpdatePost replaces the post with mutate(post). It returns false, changing nothing, when id is absent.
// mutate must be pure; it runs under the store lock. When offset paging delivered the same post
// twice, every copy receives the same result.
func (s *Store) UpdatePost(id string, mutate func(models.Post) models.Post) bool {
	s.mu.Lock()
	first := -1
	for i := range s.posts {
		if s.posts[i].ID == id {
			first = i
			break
		}
	}
	if first < 0 {
		s.mu.Unlock()
		return false
	}
	next := mutate(s.posts[first].Clone())
	next.ID = id
	if next.LikeCount < 0 {
		next.LikeCount = 0
	}
	if next.CommentCount < 0 {
		next.CommentCount = 0
	}
	for i := first; i < len(s.posts); i++ {
		if s.posts[i].ID == id {
			s.posts[i] = next.Clone()
		}
	}
	v, listeners := s.bumpLocked()
	s.mu.Unlock()
	notify(listeners, v)
	return true
}

func (s *Store) bumpLocked() (uint64, []func(uint64)) {
	s.version++
	return s.version, s.listeners
}

func notify(listeners []func(uint64), v uint64) {
	for _, fn := range listeners {
		fn(v)
	}
}
