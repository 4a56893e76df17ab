package main

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/go-user-accounts/internal/api/workspace"
	"github.com/FACorreiaa/go-user-accounts/internal/notify"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

// memDB backs every repository interface with maps so the full HTTP stack
// can run without Postgres.
type memDB struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*types.User
	data    map[uuid.UUID]*types.UserData
	tokens  map[string]*types.ResetToken
	members map[string]map[uuid.UUID]types.WorkspaceRole
	admins  []uuid.UUID
}

func newMemDB() *memDB {
	return &memDB{
		users:   map[uuid.UUID]*types.User{},
		data:    map[uuid.UUID]*types.UserData{},
		tokens:  map[string]*types.ResetToken{},
		members: map[string]map[uuid.UUID]types.WorkspaceRole{},
	}
}

func (m *memDB) byEmail(email string) *types.User {
	for _, u := range m.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func clone(u *types.User) *types.User {
	c := *u
	return &c
}

func (m *memDB) CreateUser(_ context.Context, user *types.User) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing := m.byEmail(user.Email); existing != nil {
		if existing.PasswordHash != "" {
			return nil, types.ErrConflict
		}
		existing.Name, existing.Role, existing.UseCase = user.Name, user.Role, user.UseCase
		existing.PasswordHash = user.PasswordHash
		existing.IsEnabled = true
		existing.UpdatedAt = now
		return clone(existing), nil
	}
	u := clone(user)
	u.ID = uuid.New()
	u.IsEnabled = true
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = u
	return clone(u), nil
}

func (m *memDB) CreateSuperUser(_ context.Context, user *types.User) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.users) > 0 {
		return nil, types.ErrForbidden
	}
	now := time.Now()
	u := clone(user)
	u.ID = uuid.New()
	u.IsEnabled = true
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = u
	m.admins = append(m.admins, u.ID)
	return clone(u), nil
}

func (m *memDB) GetUserByEmail(_ context.Context, email string) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.byEmail(email); u != nil {
		return clone(u), nil
	}
	return nil, types.ErrNotFound
}

func (m *memDB) GetUserByID(_ context.Context, id uuid.UUID) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return clone(u), nil
	}
	return nil, types.ErrNotFound
}

func (m *memDB) GetUserData(_ context.Context, id uuid.UUID) (*types.UserData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.data[id]; ok {
		c := *d
		c.HasProfilePhoto = c.ProfilePhotoKey != ""
		return &c, nil
	}
	return &types.UserData{UserID: id}, nil
}

func (m *memDB) userData(id uuid.UUID) *types.UserData {
	d, ok := m.data[id]
	if !ok {
		d = &types.UserData{UserID: id}
		m.data[id] = d
	}
	d.UpdatedAt = time.Now()
	return d
}

func (m *memDB) UpdateProfile(_ context.Context, id uuid.UUID, p types.UpdateProfileParams) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	if p.Email != nil {
		if other := m.byEmail(*p.Email); other != nil && other.ID != id {
			return nil, types.ErrConflict
		}
		u.Email = *p.Email
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.UseCase != nil {
		u.UseCase = *p.UseCase
	}
	return clone(u), nil
}

func (m *memDB) SetReleaseNotesViewed(_ context.Context, id uuid.UUID, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userData(id).ReleaseNotesViewedVersion = version
	return nil
}

func (m *memDB) SetCommentState(_ context.Context, id uuid.UUID, state types.CommentOnboardingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userData(id).CommentOnboardingState = state
	return nil
}

func (m *memDB) SetProfilePhotoKey(_ context.Context, id uuid.UUID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.userData(id)
	prev := d.ProfilePhotoKey
	d.ProfilePhotoKey = key
	return prev, nil
}

func (m *memDB) UpsertToken(_ context.Context, tok types.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, t := range m.tokens {
		if t.UserID == tok.UserID {
			delete(m.tokens, h)
		}
	}
	t := tok
	m.tokens[tok.TokenHash] = &t
	return nil
}

func (m *memDB) GetToken(_ context.Context, hash string) (*types.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[hash]; ok {
		c := *t
		return &c, nil
	}
	return nil, types.ErrNotFound
}

func (m *memDB) ConsumeToken(_ context.Context, hash, passwordHash string, now time.Time) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	switch {
	case !ok:
		return nil, types.ErrTokenInvalid
	case t.ConsumedAt != nil:
		return nil, types.ErrTokenUsed
	case !now.Before(t.ExpiresAt):
		return nil, types.ErrTokenExpired
	}
	t.ConsumedAt = &now
	u := m.users[t.UserID]
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &now
	u.IsEnabled = true
	return clone(u), nil
}

func (m *memDB) GetRole(_ context.Context, ws string, id uuid.UUID) (types.WorkspaceRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role, ok := m.members[ws][id]; ok {
		return role, nil
	}
	return "", types.ErrNotFound
}

func (m *memDB) Claim(_ context.Context, ws string, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.members[ws]) > 0 {
		return false, nil
	}
	m.members[ws] = map[uuid.UUID]types.WorkspaceRole{id: types.RoleAdministrator}
	return true, nil
}

func (m *memDB) AddMembers(_ context.Context, ws string, emails []string, role types.WorkspaceRole) ([]types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[ws] == nil {
		m.members[ws] = map[uuid.UUID]types.WorkspaceRole{}
	}
	remaining := 0
	for _, r := range m.members[ws] {
		if r == types.RoleAdministrator {
			remaining++
		}
	}
	hadAdmins := remaining > 0
	if role != types.RoleAdministrator {
		for _, e := range emails {
			if u := m.byEmail(e); u != nil && m.members[ws][u.ID] == types.RoleAdministrator {
				remaining--
			}
		}
	}
	if hadAdmins && remaining == 0 {
		return nil, workspace.ErrLastAdministrator
	}

	out := make([]types.User, 0, len(emails))
	for _, e := range emails {
		u := m.byEmail(e)
		if u == nil {
			u = &types.User{ID: uuid.New(), Email: e, CreatedAt: time.Now(), UpdatedAt: time.Now()}
			m.users[u.ID] = u
		}
		m.members[ws][u.ID] = role
		out = append(out, *u)
	}
	return out, nil
}

// Leave mirrors the Postgres repository's last-administrator rule.
func (m *memDB) Leave(_ context.Context, ws string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.members[ws][id]
	if !ok {
		return types.ErrNotFound
	}
	if role == types.RoleAdministrator {
		admins := 0
		for _, r := range m.members[ws] {
			if r == types.RoleAdministrator {
				admins++
			}
		}
		if admins == 1 {
			return workspace.ErrLastAdministrator
		}
	}
	delete(m.members[ws], id)
	return nil
}

type memPhotoStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memPhotoStore) Put(_ context.Context, key, _ string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
	return nil
}

func (s *memPhotoStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, "", types.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), "image/jpeg", nil
}

func (s *memPhotoStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// outbox keeps every email handed to it.
type outbox struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (o *outbox) Send(_ context.Context, e notify.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, e)
	return nil
}

func (o *outbox) last(to string) (notify.Email, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].To == to {
			return o.sent[i], true
		}
	}
	return notify.Email{}, false
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}
