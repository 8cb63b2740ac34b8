// Package auth identifies callers: bearer tokens for HTTP and an
// allow-list of Telegram users for the bot.
package auth

import (
	"sort"
	"strconv"
	"sync"
)

// Viewer is an allow-listed Telegram user.
type Viewer struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	// Region is the viewer's streaming region, set with /region.
	Region string `json:"region,omitempty"`
}

// ScopedID is the storage user id for a Telegram user.
func ScopedID(telegramID int64) string {
	return "tg:" + strconv.FormatInt(telegramID, 10)
}

type Repository interface {
	LoadAll() ([]Viewer, error)
	Upsert(v Viewer) error
	Remove(id int64) error
}

type Service struct {
	repo    Repository
	mu      sync.RWMutex
	viewers map[int64]Viewer
}

// NewWithRepo preloads viewers from repo and merges the ids from config.
func NewWithRepo(repo Repository, initial []int64) (*Service, error) {
	s := &Service{repo: repo, viewers: make(map[int64]Viewer)}
	if repo != nil {
		viewers, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, v := range viewers {
			s.viewers[v.ID] = v
		}
	}
	for _, id := range initial {
		if _, ok := s.viewers[id]; !ok {
			s.viewers[id] = Viewer{ID: id}
		}
	}
	return s, nil
}

func (s *Service) IsAllowed(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.viewers[id]
	return ok
}

func (s *Service) Get(id int64) (Viewer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.viewers[id]
	return v, ok
}

func (s *Service) Upsert(v Viewer) error {
	s.mu.Lock()
	s.viewers[v.ID] = v
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(v)
	}
	return nil
}

// SetRegion stores the viewer's region. Unknown viewers are ignored.
func (s *Service) SetRegion(id int64, region string) error {
	s.mu.Lock()
	v, ok := s.viewers[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	v.Region = region
	s.viewers[id] = v
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(v)
	}
	return nil
}

func (s *Service) Remove(id int64) error {
	s.mu.Lock()
	delete(s.viewers, id)
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Remove(id)
	}
	return nil
}

// List returns viewers ordered by id.
func (s *Service) List() []Viewer {
	s.mu.RLock()
	out := make([]Viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		out = append(out, v)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
