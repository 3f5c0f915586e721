package moltbook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct {
	key string
}

func (s staticCreds) EffectiveCredential() (string, bool) {
	return s.key, s.key != ""
}

// recorded captures the last request the fake API received.
type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

func newTestAPI(t *testing.T, status int, reply string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.auth = r.Header.Get("Authorization")
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			json.Unmarshal(data, &rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestRegisterAgent(t *testing.T) {
	srv, rec := newTestAPI(t, http.StatusOK,
		`{"success":true,"agent":{"api_key":"moltbook_sk_1","claim_url":"https://moltbook.com/claim/x","verification_code":"reef-42"}}`)
	c := New(srv.URL, nil)

	reg, err := c.RegisterAgent(context.Background(), "CrabBot", "Posts about crustaceans")
	require.NoError(t, err)
	assert.Equal(t, "moltbook_sk_1", reg.APIKey)
	assert.Equal(t, "reef-42", reg.VerificationCode)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/agents/register", rec.path)
	assert.Empty(t, rec.auth, "register must not send a credential")
	assert.Equal(t, "CrabBot", rec.body["name"])
}

func TestRegisterAgentWithoutKeyFails(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusOK, `{"message":"name taken"}`)
	c := New(srv.URL, nil)

	_, err := c.RegisterAgent(context.Background(), "CrabBot", "Posts about crustaceans")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "name taken", apiErr.Message)
}

func TestCallsWithoutCredential(t *testing.T) {
	srv, rec := newTestAPI(t, http.StatusOK, `{}`)

	for _, creds := range []CredentialSource{nil, staticCreds{}} {
		c := New(srv.URL, creds)
		_, err := c.Status(context.Background())
		require.ErrorIs(t, err, ErrNotConnected)
	}
	assert.Empty(t, rec.path, "no request should be sent without a credential")
}

func TestStatusSendsBearer(t *testing.T) {
	srv, rec := newTestAPI(t, http.StatusOK,
		`{"success":true,"status":"pending_claim","agent":{"id":"a1","name":"CrabBot"}}`)
	c := New(srv.URL, staticCreds{key: "moltbook_sk_2"})

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer moltbook_sk_2", rec.auth)
	assert.Equal(t, "pending_claim", st.Status)
	assert.Equal(t, "CrabBot", st.Agent.Name)
}

func TestCredentialReadPerCall(t *testing.T) {
	srv, rec := newTestAPI(t, http.StatusOK, `{"success":true,"posts":[]}`)
	creds := &switchingCreds{key: "first"}
	c := New(srv.URL, creds)

	_, err := c.ListPosts(context.Background(), ListPostsParams{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer first", rec.auth)

	creds.key = "second"
	_, err = c.ListPosts(context.Background(), ListPostsParams{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer second", rec.auth)
}

type switchingCreds struct{ key string }

func (s *switchingCreds) EffectiveCredential() (string, bool) { return s.key, true }

func TestListPostsQuery(t *testing.T) {
	srv, rec := newTestAPI(t, http.StatusOK,
		`{"success":true,"posts":[{"id":"p1","title":"Hello","upvotes":5,"downvotes":2,"agent_name":"Legacy"}]}`)
	c := New(srv.URL, staticCreds{key: "k"})

	posts, err := c.ListPosts(context.Background(), ListPostsParams{})
	require.NoError(t, err)
	assert.Equal(t, "limit=10&sort=new", rec.query)
	require.Len(t, posts, 1)
	assert.Equal(t, "Legacy", posts[0].AuthorName())
	assert.Equal(t, 3, posts[0].Score())

	_, err = c.ListPosts(context.Background(), ListPostsParams{Sort: SortHot, Limit: 20, Submolt: "general"})
	require.NoError(t, err)
	assert.Equal(t, "limit=20&sort=hot&submolt=general", rec.query)
}

func TestGetPostAndComments(t *testing.T) {
	srv, rec := newTestAPI(t, http.StatusOK,
		`{"success":true,"post":{"id":"p 1","title":"T","author":{"id":"a","name":"CrabBot"}}}`)
	c := New(srv.URL, staticCreds{key: "k"})

	post, err := c.GetPost(context.Background(), "p 1")
	require.NoError(t, err)
	assert.Equal(t, "/posts/p 1", rec.path)
	assert.Equal(t, "CrabBot", post.AuthorName())

	srv2, rec2 := newTestAPI(t, http.StatusOK,
		`{"success":true,"comments":[{"id":"c1","content":"nice","author":{"id":"a","name":"Other"}}]}`)
	c2 := New(srv2.URL, staticCreds{key: "k"})
	comments, err := c2.ListComments(context.Background(), "p1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "sort=new", rec2.query)
	require.Len(t, comments, 1)
	assert.Equal(t, "Other", comments[0].AuthorName())
}

func TestCreateCommentReply(t *testing.T) {
	srv, rec := newTestAPI(t, http.StatusOK, `{"success":true,"message":"Comment added","comment":{"id":"c9"}}`)
	c := New(srv.URL, staticCreds{key: "k"})

	res, err := c.CreateComment(context.Background(), "p1", NewComment{Content: "agreed", ParentID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "Comment added", res.Message)
	assert.Contains(t, res.Fields, "comment")
	assert.Equal(t, "/posts/p1/comments", rec.path)
	assert.Equal(t, "c1", rec.body["parent_id"])
}

func TestCreatePostOmitsEmptyFields(t *testing.T) {
	srv, rec := newTestAPI(t, http.StatusOK, `{"success":true}`)
	c := New(srv.URL, staticCreds{key: "k"})

	_, err := c.CreatePost(context.Background(), NewPost{Submolt: "general", Title: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "general", rec.body["submolt"])
	assert.NotContains(t, rec.body, "url")
	assert.NotContains(t, rec.body, "content")
}

func TestSuccessFalseIsAPIError(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusOK, `{"success":false,"error":"Already upvoted"}`)
	c := New(srv.URL, staticCreds{key: "k"})

	_, err := c.UpvotePost(context.Background(), "p1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Already upvoted", apiErr.Message)

	_, err = c.ListSubmolts(context.Background())
	require.ErrorAs(t, err, &apiErr)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusTooManyRequests, `{"success":false,"error":"slow down","retry_after_minutes":30}`)
	c := New(srv.URL, staticCreds{key: "k"})

	_, err := c.GetSubmolt(context.Background(), "general")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "429")
}

func TestHTTPErrorPlainBody(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusBadGateway, "upstream down")
	c := New(srv.URL, staticCreds{key: "k"})

	_, err := c.ListSubmolts(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestDecodeErrorPropagates(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusOK, `<html>`)
	c := New(srv.URL, staticCreds{key: "k"})

	_, err := c.ListSubmolts(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestAgentProfile(t *testing.T) {
	srv, rec := newTestAPI(t, http.StatusOK,
		`{"success":true,"agent":{"id":"a1","name":"CrabBot","karma":12,"owner":{"x_handle":"crab"}},"recentPosts":[{"id":"p1","title":"x"}]}`)
	c := New(srv.URL, staticCreds{key: "k"})

	prof, err := c.AgentProfile(context.Background(), "CrabBot")
	require.NoError(t, err)
	assert.Equal(t, "name=CrabBot", rec.query)
	assert.Equal(t, 12, prof.Agent.Karma)
	assert.Equal(t, "crab", prof.Agent.Owner.XHandle)
	assert.Len(t, prof.RecentPosts, 1)
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusOK, `{"success":true,"submolts":[]}`)
	c := New(srv.URL, staticCreds{key: "k"}, WithRateLimit(0.001))

	_, err := c.ListSubmolts(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ListSubmolts(ctx)
	require.Error(t, err)
}
