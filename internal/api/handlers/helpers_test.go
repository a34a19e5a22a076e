package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/MacJediWizard/tenancy/internal/api/middleware"
	"github.com/MacJediWizard/tenancy/internal/auth"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const userHeader = "X-User-ID"

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore is an in-memory stand-in for *db.DB.
type memStore struct {
	mu          sync.Mutex
	orgs        map[uuid.UUID]*models.Organization
	teams       map[uuid.UUID]*models.Team
	memberships map[uuid.UUID]*models.Membership

	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		orgs:        map[uuid.UUID]*models.Organization{},
		teams:       map[uuid.UUID]*models.Team{},
		memberships: map[uuid.UUID]*models.Membership{},
	}
}

func (s *memStore) addOrg(slug string, members map[string]models.Role) *models.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	org := models.NewOrganization(strings.ToUpper(slug[:1])+slug[1:], slug, "")
	s.orgs[org.ID] = org
	for userID, role := range members {
		m := models.NewMembership(userID, userID+"@example.com", models.NewOrgScope(org.ID), role, nil)
		s.memberships[m.ID] = m
	}
	return org
}

func (s *memStore) addTeam(orgID *uuid.UUID, slug string, members map[string]models.Role) *models.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	team := models.NewTeam(orgID, slug, slug)
	s.teams[team.ID] = team
	for userID, role := range members {
		m := models.NewMembership(userID, userID+"@example.com", models.NewTeamScope(team.ID), role, nil)
		s.memberships[m.ID] = m
	}
	return team
}

func (s *memStore) membershipOf(userID string, scope models.Scope) *models.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.UserID == userID && m.IsActive && models.InScope(m, scope) {
			return m
		}
	}
	return nil
}

func (s *memStore) CreateOrganizationWithOwner(_ context.Context, org *models.Organization, owner *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	for _, o := range s.orgs {
		if o.Slug == org.Slug {
			return db.ErrDuplicate
		}
	}
	s.orgs[org.ID] = org
	s.memberships[owner.ID] = owner
	return nil
}

func (s *memStore) GetOrganizationByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	org, ok := s.orgs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *memStore) UpdateOrganization(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[org.ID]; !ok {
		return db.ErrNotFound
	}
	for _, o := range s.orgs {
		if o.ID != org.ID && o.Slug == org.Slug {
			return db.ErrDuplicate
		}
	}
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *memStore) DeleteOrganization(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.orgs, id)
	for mid, m := range s.memberships {
		if m.OrganizationID != nil && *m.OrganizationID == id {
			delete(s.memberships, mid)
		}
	}
	return nil
}

func (s *memStore) CreateTeam(_ context.Context, team *models.Team, lead *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.teams {
		if t.Slug == team.Slug && t.SameTenant(team) {
			return db.ErrDuplicate
		}
	}
	if team.ParentTeamID != nil {
		if _, ok := s.teams[*team.ParentTeamID]; !ok {
			return db.ErrNotFound
		}
	}
	cp := *team
	s.teams[team.ID] = &cp
	if lead != nil {
		s.memberships[lead.ID] = lead
	}
	return nil
}

func (s *memStore) GetTeamByID(_ context.Context, id uuid.UUID) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *team
	return &cp, nil
}

func (s *memStore) ListTeamsByOrganization(_ context.Context, orgID uuid.UUID) ([]*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var teams []*models.Team
	for _, t := range s.teams {
		if t.OrganizationID != nil && *t.OrganizationID == orgID {
			teams = append(teams, t)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Slug < teams[j].Slug })
	return teams, nil
}

func (s *memStore) UpdateTeam(_ context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[team.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *team
	s.teams[team.ID] = &cp
	return nil
}

func (s *memStore) DeleteTeam(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.teams, id)
	return nil
}

func (s *memStore) GetActiveMembership(_ context.Context, userID string, scope models.Scope) (*models.Membership, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.membershipOf(userID, scope), nil
}

func (s *memStore) ListScopeMembers(_ context.Context, scope models.Scope) ([]*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Membership
	for _, m := range s.memberships {
		if m.IsActive && models.InScope(m, scope) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memStore) GetMembershipByID(_ context.Context, id uuid.UUID) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) UpdateMembership(_ context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.memberships[m.ID]
	if !ok || !cur.IsActive {
		return db.ErrNotFound
	}
	cur.Role = m.Role
	return nil
}

func (s *memStore) DeactivateMembership(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.memberships[id]
	if !ok || !cur.IsActive {
		return db.ErrNotFound
	}
	cur.IsActive = false
	return nil
}

func (s *memStore) CountActiveOwners(_ context.Context, orgID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.memberships {
		if m.IsActive && m.IsOwner() && m.OrganizationID != nil && *m.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListMembershipsForUser(_ context.Context, userID string, page db.Page) ([]*models.MembershipWithScope, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*models.MembershipWithScope
	for _, m := range s.memberships {
		if m.UserID != userID || !m.IsActive {
			continue
		}
		scope, _ := models.ScopeOf(m)
		name := ""
		if org, ok := s.orgs[scope.ID]; ok {
			name = org.Name
		} else if team, ok := s.teams[scope.ID]; ok {
			name = team.Name
		}
		all = append(all, &models.MembershipWithScope{Membership: *m, ScopeType: scope.Type, ScopeName: name})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ScopeName < all[j].ScopeName })
	total := len(all)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	return all[page.Offset:end], total, nil
}

// recordingAudit captures recorded entries synchronously.
type recordingAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *recordingAudit) Record(_ context.Context, entry *models.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingAudit) actions() []models.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *recordingAudit) last() *models.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	return r.entries[len(r.entries)-1]
}

// newTestEngine returns a router that authenticates requests from the X-User-ID header.
func newTestEngine() (*gin.Engine, *gin.RouterGroup) {
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(nil, userHeader, zerolog.Nop()))
	return r, api
}

func newRBAC(store *memStore) *auth.RBAC {
	return auth.NewRBAC(store)
}

func doJSON(r http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(userHeader, userID)
		req.Header.Set(userHeader+"-Email", userID+"@example.com")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// envelope mirrors middleware.Envelope with raw data for typed decoding.
type envelope struct {
	OK    bool                  `json:"ok"`
	Data  json.RawMessage       `json:"data"`
	Error *middleware.ErrorBody `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, w.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v (body %q)", err, w.Body.String())
		}
	}
	return env
}
