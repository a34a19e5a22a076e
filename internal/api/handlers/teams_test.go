package handlers

import (
	"net/http"
	"testing"

	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTeamRouter(store *memStore, rec *recordingAudit) *gin.Engine {
	r, api := newTestEngine()
	NewTeamsHandler(store, newRBAC(store), rec, zerolog.Nop()).RegisterRoutes(api, RouteLimits{})
	return r
}

func TestCreateOrganizationTeam(t *testing.T) {
	store := newMemStore()
	org := store.addOrg("acme", map[string]models.Role{"alice": models.OrgRoleAdmin, "bob": models.OrgRoleMember})
	other := store.addOrg("globex", nil)
	foreignTeam := store.addTeam(&other.ID, "ops", nil)
	rec := &recordingAudit{}
	r := setupTeamRouter(store, rec)
	path := "/api/v1/organizations/" + org.ID.String() + "/teams"

	t.Run("admin creates and leads", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, path, "alice", `{"name":"Platform","slug":"platform"}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp TeamResponse
		decode(t, w, &resp)
		require.NotNil(t, resp.Team.OrganizationID)
		assert.Equal(t, org.ID, *resp.Team.OrganizationID)
		assert.Equal(t, models.TeamRoleLead, resp.Role)

		lead := store.membershipOf("alice", models.NewTeamScope(resp.Team.ID))
		require.NotNil(t, lead)
		assert.Equal(t, models.TeamRoleLead, lead.Role)
		assert.Equal(t, models.AuditActionTeamCreated, rec.last().Action)
	})

	t.Run("member cannot create", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, path, "bob", `{"name":"Rogue","slug":"rogue"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("parent from another organization", func(t *testing.T) {
		body := `{"name":"Child","slug":"child","parent_team_id":"` + foreignTeam.ID.String() + `"}`
		w := doJSON(r, http.MethodPost, path, "alice", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode(t, w, nil).Error.Message, "same organization")
	})

	t.Run("duplicate slug", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, path, "alice", `{"name":"Platform","slug":"platform"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, path, "bob", "")
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Teams []*models.Team `json:"teams"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Teams, 1)
		assert.Equal(t, "platform", resp.Teams[0].Slug)
	})
}

func TestCreateStandaloneTeam(t *testing.T) {
	store := newMemStore()
	parent := store.addTeam(nil, "guild", map[string]models.Role{"dave": models.TeamRoleLead, "erin": models.TeamRoleMember})
	r := setupTeamRouter(store, &recordingAudit{})

	w := doJSON(r, http.MethodPost, "/api/v1/teams", "dave", `{"name":"Side","slug":"side","parent_team_id":"`+parent.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp TeamResponse
	decode(t, w, &resp)
	assert.True(t, resp.Team.IsStandalone())
	assert.Equal(t, parent.ID, *resp.Team.ParentTeamID)

	// A plain member of the parent cannot attach to it.
	w = doJSON(r, http.MethodPost, "/api/v1/teams", "erin", `{"name":"Other","slug":"other","parent_team_id":"`+parent.ID.String()+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/teams", "", `{"name":"Anon","slug":"anon"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetTeam_OrgAdminInheritsLead(t *testing.T) {
	store := newMemStore()
	org := store.addOrg("acme", map[string]models.Role{"alice": models.OrgRoleAdmin, "bob": models.OrgRoleMember})
	team := store.addTeam(&org.ID, "platform", nil)
	r := setupTeamRouter(store, &recordingAudit{})
	path := "/api/v1/teams/" + team.ID.String()

	w := doJSON(r, http.MethodGet, path, "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp TeamResponse
	decode(t, w, &resp)
	assert.Equal(t, models.TeamRoleLead, resp.Role)

	// Organization members are not team members.
	w = doJSON(r, http.MethodGet, path, "bob", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTeam(t *testing.T) {
	store := newMemStore()
	org := store.addOrg("acme", nil)
	a := store.addTeam(&org.ID, "a", map[string]models.Role{"lee": models.TeamRoleLead})
	b := store.addTeam(&org.ID, "b", map[string]models.Role{"lee": models.TeamRoleLead})
	rec := &recordingAudit{}
	r := setupTeamRouter(store, rec)

	w := doJSON(r, http.MethodPut, "/api/v1/teams/"+b.ID.String(), "lee", `{"parent_team_id":"`+a.ID.String()+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("cycle", func(t *testing.T) {
		w := doJSON(r, http.MethodPut, "/api/v1/teams/"+a.ID.String(), "lee", `{"parent_team_id":"`+b.ID.String()+`"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode(t, w, nil).Error.Message, "cycle")
	})

	t.Run("self parent", func(t *testing.T) {
		w := doJSON(r, http.MethodPut, "/api/v1/teams/"+a.ID.String(), "lee", `{"parent_team_id":"`+a.ID.String()+`"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("clear parent", func(t *testing.T) {
		w := doJSON(r, http.MethodPut, "/api/v1/teams/"+b.ID.String(), "lee", `{"clear_parent":true,"description":"ops"}`)
		require.Equal(t, http.StatusOK, w.Code)
		var resp TeamResponse
		decode(t, w, &resp)
		assert.Nil(t, resp.Team.ParentTeamID)
		assert.Equal(t, "ops", resp.Team.Description)
		assert.Equal(t, models.AuditActionTeamUpdated, rec.last().Action)
	})
}

func TestUpdateTeam_ParentRequiresLead(t *testing.T) {
	store := newMemStore()
	org := store.addOrg("acme", map[string]models.Role{"alice": models.OrgRoleAdmin})
	child := store.addTeam(&org.ID, "child", map[string]models.Role{"lee": models.TeamRoleLead})
	parent := store.addTeam(&org.ID, "parent", map[string]models.Role{"lee": models.TeamRoleMember})
	r := setupTeamRouter(store, &recordingAudit{})
	path := "/api/v1/teams/" + child.ID.String()
	body := `{"parent_team_id":"` + parent.ID.String() + `"}`

	w := doJSON(r, http.MethodPut, path, "lee", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, store.teams[child.ID].ParentTeamID)

	// Organization admins lead every team of the organization.
	w = doJSON(r, http.MethodPut, path, "alice", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp TeamResponse
	decode(t, w, &resp)
	require.NotNil(t, resp.Team.ParentTeamID)
	assert.Equal(t, parent.ID, *resp.Team.ParentTeamID)
}

func TestDeleteTeam(t *testing.T) {
	store := newMemStore()
	team := store.addTeam(nil, "guild", map[string]models.Role{"dave": models.TeamRoleLead, "erin": models.TeamRoleMember})
	rec := &recordingAudit{}
	r := setupTeamRouter(store, rec)
	path := "/api/v1/teams/" + team.ID.String()

	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodDelete, path, "erin", "").Code)
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodDelete, path, "dave", "").Code)
	assert.Equal(t, []models.AuditAction{models.AuditActionTeamDeleted}, rec.actions())
}
