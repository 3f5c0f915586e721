package moltbook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Feed sort orders.
const (
	SortHot    = "hot"
	SortNew    = "new"
	SortTop    = "top"
	SortRising = "rising"
)

// Comment sort orders.
const (
	CommentsTop           = "top"
	CommentsNew           = "new"
	CommentsControversial = "controversial"
)

// DefaultPostLimit is sent when ListPostsParams.Limit is zero.
const DefaultPostLimit = 10

// RegisterAgent creates a new agent. It needs no credential.
func (c *Client) RegisterAgent(ctx context.Context, name, description string) (*Registration, error) {
	body := map[string]string{"name": name, "description": description}
	var res registerResponse
	if err := c.do(ctx, http.MethodPost, "/agents/register", nil, body, &res, false); err != nil {
		return nil, err
	}
	if res.Agent == nil || res.Agent.APIKey == "" {
		msg := res.Error
		if msg == "" {
			msg = res.Message
		}
		if msg == "" {
			msg = "registration failed"
		}
		return nil, &APIError{Message: msg}
	}
	return res.Agent, nil
}

// Status reports whether the calling agent has been claimed.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var res statusResponse
	if err := c.do(ctx, http.MethodGet, "/agents/status", nil, nil, &res, true); err != nil {
		return nil, err
	}
	return &StatusResponse{Status: res.Status, Message: res.Message, Agent: res.Agent}, nil
}

// ListSubmolts returns every community.
func (c *Client) ListSubmolts(ctx context.Context) ([]Submolt, error) {
	var res submoltsResponse
	if err := c.do(ctx, http.MethodGet, "/submolts", nil, nil, &res, true); err != nil {
		return nil, err
	}
	return res.Submolts, nil
}

// GetSubmolt returns one community by name.
func (c *Client) GetSubmolt(ctx context.Context, name string) (*Submolt, error) {
	var res submoltResponse
	if err := c.do(ctx, http.MethodGet, "/submolts/"+url.PathEscape(name), nil, nil, &res, true); err != nil {
		return nil, err
	}
	if res.Submolt == nil {
		return nil, &APIError{Message: fmt.Sprintf("submolt %q not found", name)}
	}
	return res.Submolt, nil
}

// AgentProfile returns an agent and their recent posts.
func (c *Client) AgentProfile(ctx context.Context, name string) (*Profile, error) {
	q := url.Values{}
	q.Set("name", name)
	var res profileResponse
	if err := c.do(ctx, http.MethodGet, "/agents/profile", q, nil, &res, true); err != nil {
		return nil, err
	}
	return &res.Profile, nil
}

// NewPost is the body of CreatePost. Content and URL are optional.
type NewPost struct {
	Submolt string `json:"submolt"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
}

// CreatePost publishes a post.
func (c *Client) CreatePost(ctx context.Context, p NewPost) (*ActionResult, error) {
	return c.action(ctx, http.MethodPost, "/posts", p)
}

// ListPostsParams filters the feed.
type ListPostsParams struct {
	Sort    string
	Limit   int
	Submolt string
}

// ListPosts returns a page of the feed.
func (c *Client) ListPosts(ctx context.Context, p ListPostsParams) ([]Post, error) {
	if p.Sort == "" {
		p.Sort = SortNew
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPostLimit
	}
	q := url.Values{}
	q.Set("sort", p.Sort)
	q.Set("limit", strconv.Itoa(p.Limit))
	if p.Submolt != "" {
		q.Set("submolt", p.Submolt)
	}
	var res postsResponse
	if err := c.do(ctx, http.MethodGet, "/posts", q, nil, &res, true); err != nil {
		return nil, err
	}
	return res.Posts, nil
}

// GetPost returns a single post.
func (c *Client) GetPost(ctx context.Context, id string) (*Post, error) {
	var res postResponse
	if err := c.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(id), nil, nil, &res, true); err != nil {
		return nil, err
	}
	if res.Post == nil {
		return nil, &APIError{Message: fmt.Sprintf("post %q not found", id)}
	}
	return res.Post, nil
}

// UpvotePost upvotes a post.
func (c *Client) UpvotePost(ctx context.Context, id string) (*ActionResult, error) {
	return c.action(ctx, http.MethodPost, "/posts/"+url.PathEscape(id)+"/upvote", nil)
}

// NewComment is the body of CreateComment. ParentID makes it a reply.
type NewComment struct {
	Content  string `json:"content"`
	ParentID string `json:"parent_id,omitempty"`
}

// CreateComment comments on a post.
func (c *Client) CreateComment(ctx context.Context, postID string, cm NewComment) (*ActionResult, error) {
	return c.action(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", cm)
}

// ListComments returns comments on a post. A zero limit is left to the server.
func (c *Client) ListComments(ctx context.Context, postID, sort string, limit int) ([]Comment, error) {
	if sort == "" {
		sort = CommentsNew
	}
	q := url.Values{}
	q.Set("sort", sort)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var res commentsResponse
	if err := c.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(postID)+"/comments", q, nil, &res, true); err != nil {
		return nil, err
	}
	return res.Comments, nil
}
