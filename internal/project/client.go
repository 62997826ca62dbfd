// Package project is the typed client for the upstream REST API that owns
// projects and users. The workspace consumes it for the initial mounted tree,
// for persisting tree updates, and for collaborator management; none of that
// state is authoritative here beyond what the server stores.
package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"devroom/internal/chat"
	"devroom/internal/filetree"
)

// Project is the server-side project record.
type Project struct {
	ID       string         `json:"_id"`
	Name     string         `json:"name"`
	Users    []chat.UserRef `json:"users"`
	FileTree filetree.Tree  `json:"fileTree"`
}

// Client talks to the upstream REST API with bearer-token auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("project: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("project: failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("project: %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("project: %s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("project: failed to decode %s response: %w", path, err)
	}
	return nil
}

// GetProject fetches a project by id, including its persisted mounted tree.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var resp struct {
		Project Project `json:"project"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects/get-project/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Project, nil
}

// UpdateFileTree persists the project's mounted tree upstream.
func (c *Client) UpdateFileTree(ctx context.Context, projectID string, tree filetree.Tree) error {
	body := struct {
		ProjectID string        `json:"projectId"`
		FileTree  filetree.Tree `json:"fileTree"`
	}{ProjectID: projectID, FileTree: tree}
	return c.do(ctx, http.MethodPut, "/projects/update-file-tree", body, nil)
}

// ListUsers returns every registered user, for the collaborator picker.
func (c *Client) ListUsers(ctx context.Context) ([]chat.UserRef, error) {
	var resp struct {
		Users []chat.UserRef `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/all", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// AddCollaborators attaches users to a project.
func (c *Client) AddCollaborators(ctx context.Context, projectID string, userIDs []string) error {
	body := struct {
		ProjectID string   `json:"projectId"`
		Users     []string `json:"users"`
	}{ProjectID: projectID, Users: userIDs}
	return c.do(ctx, http.MethodPut, "/projects/add-user", body, nil)
}
