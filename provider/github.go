package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	oagithub "golang.org/x/oauth2/github"
)

const (
	githubAPIURL = "https://api.github.com"

	// GitHub requires this scope to read '/user/emails'.
	githubScopeEmail = "user:email"
	// GitHub requires this scope to read org/team membership.
	githubScopeOrgs = "read:org"
)

// GitHubConfig holds the config_provider.github section, trimmed from
// dex's connector/github Config to the fields gafaelfawr's simpler
// single-org-list membership model needs (no legacy 'org' field, no
// GitHub Enterprise host override — see DESIGN.md).
type GitHubConfig struct {
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret"`
	RedirectURL  string   `json:"redirect_url" yaml:"redirect_url"`
	Orgs         []string `json:"orgs,omitempty" yaml:"orgs,omitempty"`
}

type gitHubProvider struct {
	oauth2Config *oauth2.Config
	httpClient   *http.Client
	orgs         []string
	apiURL       string
}

// NewGitHub builds a Provider backed by GitHub's OAuth2 flow, the
// generalization of dex's connector/github githubConnector restricted to
// the org-membership case (dex's legacy single-org/per-org-team-filter
// fields are dropped — see DESIGN.md).
func NewGitHub(cfg GitHubConfig, httpClient *http.Client) Provider {
	scopes := []string{githubScopeEmail}
	if len(cfg.Orgs) > 0 {
		scopes = append(scopes, githubScopeOrgs)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &gitHubProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oagithub.Endpoint,
			Scopes:       scopes,
			RedirectURL:  cfg.RedirectURL,
		},
		httpClient: httpClient,
		orgs:       cfg.Orgs,
		apiURL:     githubAPIURL,
	}
}

func (p *gitHubProvider) LoginURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

func (p *gitHubProvider) Exchange(ctx context.Context, r *http.Request) (Identity, error) {
	q := r.URL.Query()
	if errType := q.Get("error"); errType != "" {
		return Identity{}, fmt.Errorf("provider: github returned error %q: %s", errType, q.Get("error_description"))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauth2Config.Exchange(ctx, q.Get("code"))
	if err != nil {
		return Identity{}, fmt.Errorf("provider: github code exchange: %w", err)
	}

	client := p.oauth2Config.Client(ctx, tok)
	user, err := p.user(ctx, client)
	if err != nil {
		return Identity{}, fmt.Errorf("provider: github get user: %w", err)
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	identity := Identity{
		Username: user.Login,
		UID:      strconv.Itoa(user.ID),
		Name:     name,
		Email:    user.Email,
	}

	if len(p.orgs) > 0 {
		groups, err := p.userTeams(ctx, client)
		if err != nil {
			return Identity{}, err
		}
		if len(groups) == 0 {
			return Identity{}, fmt.Errorf("provider: github user %q not a member of any team in a permitted org", user.Login)
		}
		identity.Groups = groups
	}

	return identity, nil
}

type githubUser struct {
	Name  string `json:"name"`
	Login string `json:"login"`
	ID    int    `json:"id"`
	Email string `json:"email"`
}

func (p *gitHubProvider) user(ctx context.Context, client *http.Client) (githubUser, error) {
	var u githubUser
	if err := get(ctx, client, p.apiURL+"/user", &u); err != nil {
		return u, err
	}
	if u.Email == "" {
		email, err := p.primaryEmail(ctx, client)
		if err != nil {
			return u, err
		}
		u.Email = email
	}
	return u, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Primary  bool   `json:"primary"`
}

func (p *gitHubProvider) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []githubEmail
	if err := get(ctx, client, p.apiURL+"/user/emails", &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Verified && e.Primary {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("provider: github user has no verified primary email")
}

type githubTeam struct {
	Slug         string `json:"slug"`
	Organization struct {
		Login string `json:"login"`
	} `json:"organization"`
}

// userTeams returns one group name per team the authenticated user belongs
// to within a permitted org, slug-formatted "org-team" per §4.8, grounded
// in dex's groupsForOrgs/userOrgTeams (connector/github/github.go), which
// lists every team via a single /user/teams call and filters by org.
// Dex additionally supports a per-org team allowlist and an
// "org with no teams configured still counts as a member" fallback;
// gafaelfawr's simpler org-list-only config has neither, so every team in
// a permitted org is included.
func (p *gitHubProvider) userTeams(ctx context.Context, client *http.Client) ([]string, error) {
	permitted := make(map[string]bool, len(p.orgs))
	for _, o := range p.orgs {
		permitted[o] = true
	}

	var teams []githubTeam
	if err := get(ctx, client, p.apiURL+"/user/teams", &teams); err != nil {
		return nil, fmt.Errorf("provider: github list teams: %w", err)
	}

	var groups []string
	for _, t := range teams {
		if permitted[t.Organization.Login] {
			groups = append(groups, t.Organization.Login+"-"+t.Slug)
		}
	}
	return groups, nil
}

func get(ctx context.Context, client *http.Client, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider: github %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
