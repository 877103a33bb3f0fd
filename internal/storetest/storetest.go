// Package storetest provides in-memory implementations of the repository
// interfaces for tests. They enforce the same unique keys and ownership
// rules as the MySQL tables.
package storetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/photo-monetization/internal/model"
	"github.com/iliyamo/photo-monetization/internal/queue"
	"github.com/iliyamo/photo-monetization/internal/repository"
)

type Users struct {
	mu   sync.Mutex
	Rows map[string]model.User
}

func NewUsers() *Users { return &Users{Rows: map[string]model.User{}} }

func (m *Users) Create(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = repository.NormalizeEmail(u.Email)
	for _, r := range m.Rows {
		if r.Email == u.Email {
			return repository.ErrEmailExists
		}
		if u.GoogleSub != nil && r.GoogleSub != nil && *r.GoogleSub == *u.GoogleSub {
			return repository.ErrExternalIDExists
		}
	}
	m.Rows[u.ID] = u
	return nil
}

func (m *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, r := range m.Rows {
		if r.Email == email {
			return r, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *Users) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Rows[id]; ok {
		return u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (m *Users) GetByGoogleSub(_ context.Context, sub string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Rows {
		if r.GoogleSub != nil && *r.GoogleSub == sub {
			return r, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *Users) Update(_ context.Context, id string, upd model.UserUpdate, now time.Time) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Rows[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	if upd.Name.Set {
		u.Name = upd.Name.Value
	}
	if upd.Avatar.Set {
		u.Avatar = upd.Avatar.Ptr()
	}
	if upd.Plan.Set {
		u.Plan = upd.Plan.Value
	}
	if upd.ExperienceLevel.Set {
		u.ExperienceLevel = upd.ExperienceLevel.Ptr()
	}
	if upd.ArchiveSize.Set {
		u.ArchiveSize = upd.ArchiveSize.Ptr()
	}
	u.UpdatedAt = now
	m.Rows[id] = u
	return u, nil
}

// SetPlan changes a user's plan directly, bypassing validation.
func (m *Users) SetPlan(id string, plan model.PlanTier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.Rows[id]
	u.Plan = plan
	m.Rows[id] = u
}

func (m *Users) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Rows)
}

type TokenRow struct {
	Hash      string
	ExpiresAt time.Time
	seq       int
}

// Tokens mirrors the refresh_tokens table, including the per-user cap.
type Tokens struct {
	mu   sync.Mutex
	seq  int
	Rows map[string][]TokenRow
}

func NewTokens() *Tokens { return &Tokens{Rows: map[string][]TokenRow{}} }

func (m *Tokens) Store(_ context.Context, userID, hash string, exp, now time.Time, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []TokenRow
	for _, r := range m.Rows[userID] {
		if r.ExpiresAt.After(now) {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].seq > kept[j].seq })
	if len(kept) > max-1 {
		kept = kept[:max-1]
	}
	m.seq++
	m.Rows[userID] = append(kept, TokenRow{Hash: hash, ExpiresAt: exp, seq: m.seq})
	return nil
}

func (m *Tokens) LiveHashes(_ context.Context, userID string, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.Rows[userID] {
		if r.ExpiresAt.After(now) {
			out = append(out, r.Hash)
		}
	}
	return out, nil
}

func (m *Tokens) DeleteAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Rows, userID)
	return nil
}

// Images stores image rows and their analyses. FailNext makes the next
// Create return that error.
type Images struct {
	mu       sync.Mutex
	Rows     map[string]model.Image
	Analyses map[string]model.Analysis
	FailNext error
}

func NewImages() *Images {
	return &Images{Rows: map[string]model.Image{}, Analyses: map[string]model.Analysis{}}
}

func (m *Images) Create(_ context.Context, img model.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	m.Rows[img.ID] = img
	return nil
}

func (m *Images) GetByID(_ context.Context, id string) (model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img, ok := m.Rows[id]; ok {
		return img, nil
	}
	return model.Image{}, repository.ErrNotFound
}

func (m *Images) ListByUser(_ context.Context, userID string, limit, offset int) ([]model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Image, 0)
	for _, img := range m.Rows {
		if img.UserID == userID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []model.Image{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Images) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.Rows[id]
	if !ok || img.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.Rows, id)
	delete(m.Analyses, id)
	return nil
}

func (m *Images) SaveAnalysis(_ context.Context, a model.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Payload = append([]byte(nil), a.Payload...)
	m.Analyses[a.ImageID] = a
	return nil
}

func (m *Images) GetAnalysis(_ context.Context, imageID string) (model.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.Analyses[imageID]; ok {
		return a, nil
	}
	return model.Analysis{}, repository.ErrNotFound
}

// Objects is an object store keyed by storage key.
type Objects struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Types   map[string]string
	PutErr  error
}

func NewObjects() *Objects {
	return &Objects{Objects: map[string][]byte{}, Types: map[string]string{}}
}

func (m *Objects) Put(_ context.Context, key, contentType string, body io.Reader, _ int64) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = buf.Bytes()
	m.Types[key] = contentType
	return nil
}

func (m *Objects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, key)
	delete(m.Types, key)
	return nil
}

func (m *Objects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://s3.local/photos/%s?X-Amz-Expires=%d", key, int(ttl.Seconds())), nil
}

type Distributions struct {
	mu   sync.Mutex
	Rows map[string]model.Distribution
}

func NewDistributions() *Distributions {
	return &Distributions{Rows: map[string]model.Distribution{}}
}

func (m *Distributions) Create(_ context.Context, d model.Distribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rows[d.ID] = d
	return nil
}

func (m *Distributions) GetByID(_ context.Context, id string) (model.Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.Rows[id]; ok {
		return d, nil
	}
	return model.Distribution{}, repository.ErrNotFound
}

func (m *Distributions) ListByImage(_ context.Context, imageID string) ([]model.Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Distribution, 0)
	for _, d := range m.Rows {
		if d.ImageID == imageID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (m *Distributions) MarkResult(_ context.Context, id string, status model.DistributionStatus, ext, lastErr *string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status, d.ExternalID, d.LastError, d.UpdatedAt = status, ext, lastErr, now
	m.Rows[id] = d
	return nil
}

// Events records published distribution events instead of sending them.
// A non-nil Err is returned from every publish.
type Events struct {
	mu     sync.Mutex
	Events []queue.DistributionRequestedEvent
	Err    error
}

func (r *Events) PublishDistributionRequested(_ context.Context, ev queue.DistributionRequestedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, ev)
	return nil
}
