package publish

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"contractaid/internal/contextutil"
)

// DefaultTimeout is the HTTP timeout for GitHub requests.
const DefaultTimeout = 30 * time.Second

// GitHubPoster posts the review as a comment on a pull request.
type GitHubPoster struct {
	gh     *gh.Client
	target Target
}

// NewGitHubPoster creates a poster authenticated with a static token.
func NewGitHubPoster(ctx context.Context, token string, target Target) *GitHubPoster {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = DefaultTimeout

	return &GitHubPoster{
		gh:     gh.NewClient(tc),
		target: target,
	}
}

// WithBaseURL points the client at another API root, such as GitHub Enterprise.
func (p *GitHubPoster) WithBaseURL(baseURL string) (*GitHubPoster, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
	}
	p.gh.BaseURL = u
	return p, nil
}

// Post creates one issue comment on the target pull request.
func (p *GitHubPoster) Post(ctx context.Context, body string) error {
	logger := contextutil.LoggerFromContext(ctx)

	comment, _, err := p.gh.Issues.CreateComment(ctx, p.target.Owner, p.target.Repo, p.target.Number, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to post review comment", "target", p.target.String(), "error", err)
		return fmt.Errorf("failed to post comment on %s: %w", p.target, err)
	}

	logger.InfoContext(ctx, "review comment posted", "target", p.target.String(), "comment_id", comment.GetID())
	return nil
}
