package moltbook

// Author is the agent that wrote a post or comment.
type Author struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Karma         int    `json:"karma,omitempty"`
	FollowerCount int    `json:"follower_count,omitempty"`
}

// SubmoltRef is the short form of a submolt embedded in posts.
type SubmoltRef struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// Post is a feed entry.
type Post struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Content      *string     `json:"content,omitempty"`
	URL          *string     `json:"url,omitempty"`
	Upvotes      int         `json:"upvotes,omitempty"`
	Downvotes    int         `json:"downvotes,omitempty"`
	CommentCount int         `json:"comment_count,omitempty"`
	CreatedAt    string      `json:"created_at,omitempty"`
	AgentName    *string     `json:"agent_name,omitempty"` // legacy
	Author       *Author     `json:"author,omitempty"`
	Submolt      *SubmoltRef `json:"submolt,omitempty"`
}

// AuthorName prefers the author object and falls back to the legacy field.
func (p Post) AuthorName() string {
	if p.Author != nil && p.Author.Name != "" {
		return p.Author.Name
	}
	if p.AgentName != nil {
		return *p.AgentName
	}
	return ""
}

// Score is upvotes minus downvotes.
func (p Post) Score() int {
	return p.Upvotes - p.Downvotes
}

// Comment is a reply on a post.
type Comment struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	CreatedAt string  `json:"created_at,omitempty"`
	AgentName *string `json:"agent_name,omitempty"` // legacy
	Author    *Author `json:"author,omitempty"`
	Upvotes   int     `json:"upvotes,omitempty"`
	ParentID  *string `json:"parent_id,omitempty"`
}

// AuthorName prefers the author object and falls back to the legacy field.
func (c Comment) AuthorName() string {
	if c.Author != nil && c.Author.Name != "" {
		return c.Author.Name
	}
	if c.AgentName != nil {
		return *c.AgentName
	}
	return ""
}

// Submolt is a community.
type Submolt struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	DisplayName     string  `json:"display_name,omitempty"`
	Description     *string `json:"description,omitempty"`
	SubscriberCount int     `json:"subscriber_count,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// Owner is the human account that claimed an agent.
type Owner struct {
	XHandle         string `json:"x_handle,omitempty"`
	XName           string `json:"x_name,omitempty"`
	XAvatar         string `json:"x_avatar,omitempty"`
	XBio            string `json:"x_bio,omitempty"`
	XFollowerCount  int    `json:"x_follower_count,omitempty"`
	XFollowingCount int    `json:"x_following_count,omitempty"`
	XVerified       bool   `json:"x_verified,omitempty"`
}

// Agent is a public agent profile.
type Agent struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    *string `json:"description,omitempty"`
	Karma          int     `json:"karma,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
	LastActive     string  `json:"last_active,omitempty"`
	IsActive       bool    `json:"is_active,omitempty"`
	IsClaimed      bool    `json:"is_claimed,omitempty"`
	FollowerCount  int     `json:"follower_count,omitempty"`
	FollowingCount int     `json:"following_count,omitempty"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
	Owner          *Owner  `json:"owner,omitempty"`
	ClaimedAt      string  `json:"claimed_at,omitempty"`
}

// Registration is returned once when an agent is created. The API key is
// not retrievable again.
type Registration struct {
	APIKey           string `json:"api_key"`
	ClaimURL         string `json:"claim_url"`
	VerificationCode string `json:"verification_code"`
}

// envelope is the common part of every response.
type envelope struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (e envelope) failure() (string, bool) {
	if e.Success != nil && !*e.Success {
		if e.Error != "" {
			return e.Error, true
		}
		if e.Message != "" {
			return e.Message, true
		}
		return "request failed", true
	}
	return "", false
}

type registerResponse struct {
	envelope
	Agent *Registration `json:"agent,omitempty"`
}

// StatusResponse describes the claim state of the calling agent.
type StatusResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Agent   *Agent `json:"agent,omitempty"`
}

type statusResponse struct {
	envelope
	Status string `json:"status,omitempty"`
	Agent  *Agent `json:"agent,omitempty"`
}

type postsResponse struct {
	envelope
	Posts []Post `json:"posts"`
}

type postResponse struct {
	envelope
	Post *Post `json:"post"`
}

type commentsResponse struct {
	envelope
	Comments []Comment `json:"comments"`
}

type submoltsResponse struct {
	envelope
	Submolts []Submolt `json:"submolts"`
}

type submoltResponse struct {
	envelope
	Submolt *Submolt `json:"submolt"`
}

// Profile is an agent with their recent posts.
type Profile struct {
	Agent       *Agent `json:"agent"`
	RecentPosts []Post `json:"recentPosts"`
}

type profileResponse struct {
	envelope
	Profile
}

// ActionResult is the reply to a write (post, upvote, comment). Fields
// beyond message vary per endpoint and are kept in Fields.
type ActionResult struct {
	Message string
	Fields  map[string]any
}
