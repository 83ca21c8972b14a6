package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, routes map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := routes[r.URL.Path]
		require.True(t, ok, "unexpected request to %s", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}))
}

func TestGitHubUserFallsBackToPrimaryEmail(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		"/user": githubUser{Login: "octocat", Name: "The Octocat"},
		"/user/emails": []githubEmail{
			{Email: "private@example.com", Verified: false, Primary: true},
			{Email: "octocat@example.com", Verified: true, Primary: true},
		},
	})
	defer srv.Close()

	p := &gitHubProvider{apiURL: srv.URL}
	user, err := p.user(context.Background(), srv.Client())
	require.NoError(t, err)
	require.Equal(t, "octocat@example.com", user.Email)
}

func TestGitHubUserTeamsFiltersToPermittedOrgsAndFormatsSlug(t *testing.T) {
	allowed := githubTeam{Slug: "a-team"}
	allowed.Organization.Login = "allowed-org"
	other := githubTeam{Slug: "other-team"}
	other.Organization.Login = "other-org"

	srv := newTestServer(t, map[string]interface{}{
		"/user/teams": []githubTeam{allowed, other},
	})
	defer srv.Close()

	p := &gitHubProvider{apiURL: srv.URL, orgs: []string{"allowed-org"}}
	groups, err := p.userTeams(context.Background(), srv.Client())
	require.NoError(t, err)
	require.Equal(t, []string{"allowed-org-a-team"}, groups)
}

func TestGitHubExchangeRejectsUpstreamError(t *testing.T) {
	p := &gitHubProvider{}
	req := httptest.NewRequest(http.MethodGet, "/callback?error=access_denied&error_description=nope", nil)
	_, err := p.Exchange(context.Background(), req)
	require.ErrorContains(t, err, "access_denied")
}
