// Package github answers the gateway's existence questions and performs the
// privileged repository changes against the GitHub API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Sirupsen/logrus"
	gh "github.com/google/go-github/v28/github"
	"github.com/pantheon-systems/worf/pkg/worf"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every GitHub request.
const DefaultTimeout = 15 * time.Second

// Client wraps go-github. It implements worf.Lookup and is safe for
// concurrent use.
type Client struct {
	gh  *gh.Client
	log *logrus.Logger
}

var _ worf.Lookup = (*Client)(nil)

// New builds a client authenticated with a personal access token. baseURL may
// be empty for github.com, or point at a GitHub Enterprise API.
func New(token, baseURL string, log *logrus.Logger) (*Client, error) {
	if token == "" {
		return nil, worf.NewError(worf.KindConfiguration, "github setup", fmt.Errorf("'github-token' must be specified"))
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	hc := oauth2.NewClient(context.Background(), ts)
	hc.Timeout = DefaultTimeout

	c := gh.NewClient(hc)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, worf.NewError(worf.KindConfiguration, "github setup", err)
		}
		if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
			u.Path += "/"
		}
		c.BaseURL = u
	}
	return &Client{gh: c, log: log}, nil
}

// notFound reports whether resp is a 404. Any other failure is the caller's
// RemoteUnavailable.
func notFound(resp *gh.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

func unavailable(op string, err error) error {
	return worf.NewError(worf.KindRemoteUnavailable, op, err)
}

// RepoExists reports whether org/repo exists.
func (c *Client) RepoExists(ctx context.Context, org, repo string) (bool, error) {
	_, resp, err := c.gh.Repositories.Get(ctx, org, repo)
	if err != nil {
		if notFound(resp) {
			return false, nil
		}
		return false, unavailable("get repository", err)
	}
	return true, nil
}

// User returns the GitHub account for handle, or nil when there is none.
func (c *Client) User(ctx context.Context, handle string) (*worf.Identity, error) {
	u, resp, err := c.gh.Users.Get(ctx, handle)
	if err != nil {
		if notFound(resp) {
			return nil, nil
		}
		return nil, unavailable("get user", err)
	}
	return &worf.Identity{
		Login: u.GetLogin(),
		Name:  u.GetName(),
		URL:   u.GetHTMLURL(),
	}, nil
}

// BranchExists reports whether branch exists on org/repo.
func (c *Client) BranchExists(ctx context.Context, org, repo, branch string) (bool, error) {
	_, resp, err := c.gh.Repositories.GetBranch(ctx, org, repo, branch)
	if err != nil {
		if notFound(resp) {
			return false, nil
		}
		return false, unavailable("get branch", err)
	}
	return true, nil
}

// SetDefaultBranch changes org/repo's default branch.
func (c *Client) SetDefaultBranch(ctx context.Context, org, repo, branch string) error {
	_, _, err := c.gh.Repositories.Edit(ctx, org, repo, &gh.Repository{
		DefaultBranch: gh.String(branch),
	})
	if err != nil {
		return unavailable("edit repository", err)
	}
	c.log.WithFields(logrus.Fields{"repo": org + "/" + repo, "branch": branch}).Info("default branch changed")
	return nil
}

// SetDescription changes org/repo's description.
func (c *Client) SetDescription(ctx context.Context, org, repo, description string) error {
	_, _, err := c.gh.Repositories.Edit(ctx, org, repo, &gh.Repository{
		Description: gh.String(description),
	})
	if err != nil {
		return unavailable("edit repository", err)
	}
	c.log.WithField("repo", org+"/"+repo).Info("description changed")
	return nil
}

// AddCollaborator grants user the permission (pull, push or admin) on org/repo.
func (c *Client) AddCollaborator(ctx context.Context, org, repo, user, permission string) error {
	_, err := c.gh.Repositories.AddCollaborator(ctx, org, repo, user, &gh.RepositoryAddCollaboratorOptions{
		Permission: permission,
	})
	if err != nil {
		return unavailable("add collaborator", err)
	}
	c.log.WithFields(logrus.Fields{
		"repo":       org + "/" + repo,
		"user":       user,
		"permission": permission,
	}).Info("collaborator added")
	return nil
}

// HealthZ checks that the token works by asking for the rate limits.
func (c *Client) HealthZ() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	limits, _, err := c.gh.RateLimits(ctx)
	if err != nil {
		return err
	}
	if core := limits.GetCore(); core != nil && core.Remaining == 0 {
		return fmt.Errorf("github rate limit exhausted until %s", core.Reset.Time.Format(time.RFC3339))
	}
	return nil
}
