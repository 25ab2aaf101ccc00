// Package github stores documents as files in a GitHub repository through
// the contents API. The blob SHA of a file is its revision.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v66/github"

	"github.com/msomdec/microlearn/internal/domain"
)

// Config identifies the repository and branch holding the documents.
type Config struct {
	Token  string
	Owner  string
	Repo   string
	Branch string
}

// ContentsStore implements domain.BlobStore on a GitHub repository.
type ContentsStore struct {
	client *gh.Client
	owner  string
	repo   string
	branch string
}

// NewContentsStore creates a store authenticated with cfg.Token.
func NewContentsStore(cfg Config) *ContentsStore {
	return NewContentsStoreWithClient(gh.NewClient(nil).WithAuthToken(cfg.Token), cfg)
}

// NewContentsStoreWithClient uses an existing client. Tests point its
// BaseURL at a fake server.
func NewContentsStoreWithClient(client *gh.Client, cfg Config) *ContentsStore {
	return &ContentsStore{
		client: client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		branch: cfg.Branch,
	}
}

func (s *ContentsStore) Get(ctx context.Context, name string) ([]byte, string, error) {
	var opts *gh.RepositoryContentGetOptions
	if s.branch != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: s.branch}
	}

	file, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, name, opts)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", fmt.Errorf("get contents %s: %w", name, err)
	}
	if file == nil {
		return nil, "", fmt.Errorf("get contents %s: path is a directory", name)
	}

	// Files over 1 MB come back without inline content.
	if file.GetEncoding() == "none" {
		raw, _, err := s.client.Git.GetBlobRaw(ctx, s.owner, s.repo, file.GetSHA())
		if err != nil {
			return nil, "", fmt.Errorf("get blob %s: %w", name, err)
		}
		return raw, file.GetSHA(), nil
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, "", fmt.Errorf("decode contents %s: %w", name, err)
	}
	return []byte(content), file.GetSHA(), nil
}

func (s *ContentsStore) Put(ctx context.Context, name string, data []byte, revision string) (string, error) {
	opts := &gh.RepositoryContentFileOptions{
		Content: data,
	}
	if s.branch != "" {
		opts.Branch = gh.Ptr(s.branch)
	}

	var (
		res *gh.RepositoryContentResponse
		err error
	)
	if revision == "" {
		opts.Message = gh.Ptr("Create progress file")
		res, _, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, name, opts)
	} else {
		opts.Message = gh.Ptr("Update progress")
		opts.SHA = gh.Ptr(revision)
		res, _, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, name, opts)
	}
	if err != nil {
		switch statusCode(err) {
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return "", domain.ErrConflict
		}
		return "", fmt.Errorf("put contents %s: %w", name, err)
	}
	if res == nil || res.Content == nil {
		return "", fmt.Errorf("put contents %s: response carried no content", name)
	}
	return res.Content.GetSHA(), nil
}

func statusCode(err error) int {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}
