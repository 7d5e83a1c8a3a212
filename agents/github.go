package agents

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/internal/httpclient"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// GitHub looks up the company's GitHub organization and its repositories.
type GitHub struct {
	client  *httpclient.SaferClient
	baseURL string
	token   string
}

// NewGitHub creates the "github" source. token may be empty; unauthenticated
// calls are rate limited harder.
func NewGitHub(client *httpclient.SaferClient, baseURL, token string) *GitHub {
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	return &GitHub{client: client, baseURL: baseURL, token: token}
}

func (g *GitHub) Name() string { return "github" }

type githubOrg struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Blog        string `json:"blog"`
	HTMLURL     string `json:"html_url"`
	CreatedAt   string `json:"created_at"`
}

type githubRepo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Stars       int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
	Language    string `json:"language"`
	UpdatedAt   string `json:"updated_at"`
}

// Enrich implements deal.Enricher. No matching organization is a valid,
// empty finding.
func (g *GitHub) Enrich(ctx context.Context, d *casefile.Dossier) (casefile.Finding, error) {
	var search struct {
		TotalCount int `json:"total_count"`
		Items      []struct {
			Login string `json:"login"`
		} `json:"items"`
	}
	q := url.Values{"q": {d.CompanyName() + " type:org"}, "per_page": {"5"}}
	if err := g.get(ctx, "/search/users?"+q.Encode(), &search); err != nil {
		return nil, err
	}
	if search.TotalCount == 0 || len(search.Items) == 0 {
		return casefile.Finding{"found": false, "message": "No GitHub organization found"}, nil
	}

	var org githubOrg
	login := search.Items[0].Login
	if err := g.get(ctx, "/orgs/"+url.PathEscape(login), &org); err != nil {
		return nil, err
	}

	var repos []githubRepo
	if err := g.get(ctx, "/orgs/"+url.PathEscape(login)+"/repos?per_page=30&sort=updated", &repos); err != nil {
		return nil, err
	}
	return casefile.Finding{
		"found":        true,
		"organization": org,
		"repositories": summarizeRepos(repos),
	}, nil
}

func summarizeRepos(repos []githubRepo) map[string]any {
	languages := map[string]int{}
	stars, forks := 0, 0
	for _, r := range repos {
		stars += r.Stars
		forks += r.Forks
		if r.Language != "" {
			languages[r.Language]++
		}
	}
	stack := make([]string, 0, len(languages))
	for lang := range languages {
		stack = append(stack, lang)
	}
	sort.Strings(stack)

	recent := append([]githubRepo(nil), repos...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].UpdatedAt > recent[j].UpdatedAt })
	if len(recent) > 5 {
		recent = recent[:5]
	}

	velocity := "low"
	switch {
	case len(repos) > 10:
		velocity = "high"
	case len(repos) > 3:
		velocity = "medium"
	}
	return map[string]any{
		"total_repos":          len(repos),
		"total_stars":          stars,
		"total_forks":          forks,
		"languages":            languages,
		"tech_stack":           stack,
		"recent_repos":         recent,
		"engineering_velocity": velocity,
	}
}

func (g *GitHub) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create GitHub request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "GitHub request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return errors.Newf("GitHub API error: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 5<<20)).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode GitHub response")
	}
	return nil
}
