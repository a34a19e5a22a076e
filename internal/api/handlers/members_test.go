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

func setupMemberRouter(store *memStore, rec *recordingAudit) *gin.Engine {
	r, api := newTestEngine()
	NewMembersHandler(store, newRBAC(store), rec, zerolog.Nop()).RegisterRoutes(api, RouteLimits{})
	return r
}

func TestListMembers(t *testing.T) {
	store := newMemStore()
	org := store.addOrg("acme", map[string]models.Role{"alice": models.OrgRoleOwner, "bob": models.OrgRoleMember})
	r := setupMemberRouter(store, &recordingAudit{})

	w := doJSON(r, http.MethodGet, "/api/v1/organizations/"+org.ID.String()+"/members", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Members []*models.Membership `json:"members"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Members, 2)
	assert.Equal(t, "alice", resp.Members[0].UserID)
	assert.Equal(t, models.OrgRoleOwner, resp.Members[0].Role)

	w = doJSON(r, http.MethodGet, "/api/v1/organizations/"+org.ID.String()+"/members", "mallory", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateMemberRole(t *testing.T) {
	t.Run("admin cannot grant admin", func(t *testing.T) {
		store := newMemStore()
		org := store.addOrg("acme", map[string]models.Role{"alice": models.OrgRoleAdmin, "bob": models.OrgRoleMember})
		r := setupMemberRouter(store, &recordingAudit{})
		bob := store.membershipOf("bob", models.NewOrgScope(org.ID))

		w := doJSON(r, http.MethodPut, memberPath(org.ID.String(), bob.ID.String()), "alice", `{"role":"admin"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, models.OrgRoleMember, store.membershipOf("bob", models.NewOrgScope(org.ID)).Role)
	})

	t.Run("admin cannot demote owner", func(t *testing.T) {
		store := newMemStore()
		org := store.addOrg("acme", map[string]models.Role{"alice": models.OrgRoleAdmin, "olga": models.OrgRoleOwner})
		r := setupMemberRouter(store, &recordingAudit{})
		olga := store.membershipOf("olga", models.NewOrgScope(org.ID))

		w := doJSON(r, http.MethodPut, memberPath(org.ID.String(), olga.ID.String()), "alice", `{"role":"member"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "member not found", decode(t, w, nil).Error.Message)
	})

	t.Run("sole owner cannot step down", func(t *testing.T) {
		store := newMemStore()
		org := store.addOrg("acme", map[string]models.Role{"olga": models.OrgRoleOwner})
		r := setupMemberRouter(store, &recordingAudit{})
		olga := store.membershipOf("olga", models.NewOrgScope(org.ID))

		w := doJSON(r, http.MethodPut, memberPath(org.ID.String(), olga.ID.String()), "olga", `{"role":"admin"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, models.OrgRoleOwner, store.membershipOf("olga", models.NewOrgScope(org.ID)).Role)
	})

	t.Run("owner demotes co-owner", func(t *testing.T) {
		store := newMemStore()
		org := store.addOrg("acme", map[string]models.Role{"olga": models.OrgRoleOwner, "oscar": models.OrgRoleOwner})
		rec := &recordingAudit{}
		r := setupMemberRouter(store, rec)
		oscar := store.membershipOf("oscar", models.NewOrgScope(org.ID))

		w := doJSON(r, http.MethodPut, memberPath(org.ID.String(), oscar.ID.String()), "olga", `{"role":"admin"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, models.OrgRoleAdmin, store.membershipOf("oscar", models.NewOrgScope(org.ID)).Role)

		entry := rec.last()
		require.NotNil(t, entry)
		assert.Equal(t, models.AuditActionMemberRoleUpdated, entry.Action)
		assert.Equal(t, "olga", entry.ActorID)
	})

	t.Run("invalid role", func(t *testing.T) {
		store := newMemStore()
		org := store.addOrg("acme", map[string]models.Role{"olga": models.OrgRoleOwner, "bob": models.OrgRoleMember})
		r := setupMemberRouter(store, &recordingAudit{})
		bob := store.membershipOf("bob", models.NewOrgScope(org.ID))

		w := doJSON(r, http.MethodPut, memberPath(org.ID.String(), bob.ID.String()), "olga", `{"role":"lead"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("membership from another scope", func(t *testing.T) {
		store := newMemStore()
		org := store.addOrg("acme", map[string]models.Role{"olga": models.OrgRoleOwner})
		other := store.addOrg("globex", map[string]models.Role{"gus": models.OrgRoleMember})
		r := setupMemberRouter(store, &recordingAudit{})
		gus := store.membershipOf("gus", models.NewOrgScope(other.ID))

		w := doJSON(r, http.MethodPut, memberPath(org.ID.String(), gus.ID.String()), "olga", `{"role":"admin"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("team lead changes team role", func(t *testing.T) {
		store := newMemStore()
		team := store.addTeam(nil, "guild", map[string]models.Role{"dave": models.TeamRoleLead, "erin": models.TeamRoleMember})
		r := setupMemberRouter(store, &recordingAudit{})
		erin := store.membershipOf("erin", models.NewTeamScope(team.ID))

		w := doJSON(r, http.MethodPut, "/api/v1/teams/"+team.ID.String()+"/members/"+erin.ID.String(), "dave", `{"role":"lead"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, models.TeamRoleLead, store.membershipOf("erin", models.NewTeamScope(team.ID)).Role)
	})
}

func TestRemoveMember(t *testing.T) {
	store := newMemStore()
	org := store.addOrg("acme", map[string]models.Role{
		"olga":  models.OrgRoleOwner,
		"alice": models.OrgRoleAdmin,
		"bob":   models.OrgRoleMember,
	})
	rec := &recordingAudit{}
	r := setupMemberRouter(store, rec)
	scope := models.NewOrgScope(org.ID)
	olga := store.membershipOf("olga", scope)
	bob := store.membershipOf("bob", scope)

	t.Run("last owner stays", func(t *testing.T) {
		w := doJSON(r, http.MethodDelete, memberPath(org.ID.String(), olga.ID.String()), "olga", "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NotNil(t, store.membershipOf("olga", scope))
	})

	t.Run("admin cannot remove owner", func(t *testing.T) {
		w := doJSON(r, http.MethodDelete, memberPath(org.ID.String(), olga.ID.String()), "alice", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("admin removes member", func(t *testing.T) {
		w := doJSON(r, http.MethodDelete, memberPath(org.ID.String(), bob.ID.String()), "alice", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, store.membershipOf("bob", scope))
		assert.Equal(t, models.AuditActionMemberRemoved, rec.last().Action)
	})

	t.Run("already removed", func(t *testing.T) {
		w := doJSON(r, http.MethodDelete, memberPath(org.ID.String(), bob.ID.String()), "alice", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := doJSON(r, http.MethodDelete, memberPath(org.ID.String(), "nope"), "alice", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRemoveMember_SelfLeaveTeam(t *testing.T) {
	store := newMemStore()
	team := store.addTeam(nil, "guild", map[string]models.Role{"dave": models.TeamRoleLead, "erin": models.TeamRoleMember})
	r := setupMemberRouter(store, &recordingAudit{})
	erin := store.membershipOf("erin", models.NewTeamScope(team.ID))

	// Leaving requires lead in the team guard, so a plain member is refused.
	w := doJSON(r, http.MethodDelete, "/api/v1/teams/"+team.ID.String()+"/members/"+erin.ID.String(), "erin", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/v1/teams/"+team.ID.String()+"/members/"+erin.ID.String(), "dave", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func memberPath(orgID, membershipID string) string {
	return "/api/v1/organizations/" + orgID + "/members/" + membershipID
}
