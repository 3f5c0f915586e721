package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/benaskins/molt/internal/moltbook"
	"github.com/spf13/cobra"
)

var (
	feedSort    string
	feedLimit   int
	feedSubmolt string
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "List posts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		posts, err := rt.client().ListPosts(cmd.Context(), moltbook.ListPostsParams{
			Sort:    feedSort,
			Limit:   feedLimit,
			Submolt: feedSubmolt,
		})
		if err != nil {
			return err
		}
		printPosts(cmd.OutOrStdout(), posts)
		return nil
	},
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Read, create and upvote posts",
}

var postShowCmd = &cobra.Command{
	Use:   "show <post-id>",
	Short: "Show a post and its comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		c := rt.client()
		post, err := c.GetPost(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		comments, err := c.ListComments(cmd.Context(), args[0], moltbook.CommentsNew, 80)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printPost(out, post)
		fmt.Fprintf(out, "\n%d comments\n", len(comments))
		printComments(out, comments)
		return nil
	},
}

var (
	newPostSubmolt string
	newPostTitle   string
	newPostContent string
	newPostURL     string
)

var postCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Publish a post",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(newPostTitle) == "" {
			return fmt.Errorf("title is required")
		}
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := rt.client().CreatePost(cmd.Context(), moltbook.NewPost{
			Submolt: newPostSubmolt,
			Title:   strings.TrimSpace(newPostTitle),
			Content: strings.TrimSpace(newPostContent),
			URL:     strings.TrimSpace(newPostURL),
		})
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res, "Posted")
		return nil
	},
}

var postUpvoteCmd = &cobra.Command{
	Use:   "upvote <post-id>",
	Short: "Upvote a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := rt.client().UpvotePost(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res, "Upvoted")
		return nil
	},
}

var commentParent string

var commentCmd = &cobra.Command{
	Use:   "comment <post-id> <text>",
	Short: "Comment on a post",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if text == "" {
			return fmt.Errorf("comment text is required")
		}
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := rt.client().CreateComment(cmd.Context(), args[0], moltbook.NewComment{
			Content:  text,
			ParentID: commentParent,
		})
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res, "Commented")
		return nil
	},
}

var (
	commentsSort  string
	commentsLimit int
)

var commentsCmd = &cobra.Command{
	Use:   "comments <post-id>",
	Short: "List comments on a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		comments, err := rt.client().ListComments(cmd.Context(), args[0], commentsSort, commentsLimit)
		if err != nil {
			return err
		}
		printComments(cmd.OutOrStdout(), comments)
		return nil
	},
}

var submoltsCmd = &cobra.Command{
	Use:   "submolts [query]",
	Short: "List communities, optionally filtered",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		list, err := rt.client().ListSubmolts(cmd.Context())
		if err != nil {
			return err
		}
		if len(args) == 1 {
			list = moltbook.FilterSubmolts(list, args[0])
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No submolts found.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSUBSCRIBERS\tDESCRIPTION")
		for _, m := range list {
			fmt.Fprintf(w, "m/%s\t%d\t%s\n", m.Name, m.SubscriberCount, truncate(deref(m.Description), 60))
		}
		w.Flush()
		return nil
	},
}

var submoltCmd = &cobra.Command{
	Use:   "submolt <name>",
	Short: "Show a community and its newest posts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		name := strings.TrimPrefix(args[0], "m/")
		c := rt.client()
		info, err := c.GetSubmolt(cmd.Context(), name)
		if err != nil {
			return err
		}
		posts, err := c.ListPosts(cmd.Context(), moltbook.ListPostsParams{Sort: moltbook.SortNew, Limit: 20, Submolt: name})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		title := info.DisplayName
		if title == "" {
			title = info.Name
		}
		fmt.Fprintf(out, "m/%s  %s  (%d subscribers)\n", info.Name, title, info.SubscriberCount)
		if d := deref(info.Description); d != "" {
			fmt.Fprintln(out, d)
		}
		fmt.Fprintln(out)
		printPosts(out, posts)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <agent-name>",
	Short: "Show an agent's profile and recent posts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		prof, err := rt.client().AgentProfile(cmd.Context(), strings.TrimPrefix(args[0], "u/"))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if a := prof.Agent; a != nil {
			fmt.Fprintf(out, "u/%s  karma %d  followers %d  following %d\n", a.Name, a.Karma, a.FollowerCount, a.FollowingCount)
			if d := deref(a.Description); d != "" {
				fmt.Fprintln(out, d)
			}
			claimed := "unclaimed"
			if a.IsClaimed {
				claimed = "claimed"
			}
			if a.Owner != nil && a.Owner.XHandle != "" {
				claimed += " by @" + a.Owner.XHandle
			}
			fmt.Fprintln(out, claimed)
		}
		fmt.Fprintln(out)
		printPosts(out, prof.RecentPosts)
		return nil
	},
}

func printPosts(out io.Writer, posts []moltbook.Post) {
	if len(posts) == 0 {
		fmt.Fprintln(out, "No posts")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tCOMMENTS\tSUBMOLT\tAUTHOR\tTITLE")
	for _, p := range posts {
		sub := "-"
		if p.Submolt != nil {
			sub = "m/" + p.Submolt.Name
		}
		author := p.AuthorName()
		if author == "" {
			author = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n", p.ID, p.Score(), p.CommentCount, sub, author, truncate(p.Title, 60))
	}
	w.Flush()
}

func printPost(out io.Writer, p *moltbook.Post) {
	fmt.Fprintln(out, p.Title)
	meta := []string{fmt.Sprintf("%d points", p.Score())}
	if a := p.AuthorName(); a != "" {
		meta = append(meta, "by "+a)
	}
	if p.Submolt != nil {
		meta = append(meta, "in m/"+p.Submolt.Name)
	}
	if p.CreatedAt != "" {
		meta = append(meta, p.CreatedAt)
	}
	fmt.Fprintln(out, strings.Join(meta, " · "))
	if u := deref(p.URL); u != "" {
		fmt.Fprintln(out, u)
	}
	if c := deref(p.Content); c != "" {
		fmt.Fprintf(out, "\n%s\n", c)
	}
}

func printComments(out io.Writer, comments []moltbook.Comment) {
	for _, c := range comments {
		author := c.AuthorName()
		if author == "" {
			author = "anonymous"
		}
		reply := ""
		if c.ParentID != nil && *c.ParentID != "" {
			reply = " (reply)"
		}
		fmt.Fprintf(out, "\n[%s] %s%s, %d points\n%s\n", c.ID, author, reply, c.Upvotes, c.Content)
	}
}

func printResult(out io.Writer, res *moltbook.ActionResult, fallback string) {
	if res.Message != "" {
		fmt.Fprintln(out, res.Message)
		return
	}
	fmt.Fprintln(out, fallback)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	feedCmd.Flags().StringVar(&feedSort, "sort", moltbook.SortNew, "hot, new, top or rising")
	feedCmd.Flags().IntVar(&feedLimit, "limit", 15, "Number of posts")
	feedCmd.Flags().StringVar(&feedSubmolt, "submolt", "", "Only posts from this submolt")

	postCreateCmd.Flags().StringVar(&newPostSubmolt, "submolt", "general", "Submolt to post in")
	postCreateCmd.Flags().StringVar(&newPostTitle, "title", "", "Post title")
	postCreateCmd.Flags().StringVar(&newPostContent, "content", "", "Post body")
	postCreateCmd.Flags().StringVar(&newPostURL, "url", "", "Link to share")

	commentCmd.Flags().StringVar(&commentParent, "reply-to", "", "Parent comment id")
	commentsCmd.Flags().StringVar(&commentsSort, "sort", moltbook.CommentsNew, "top, new or controversial")
	commentsCmd.Flags().IntVar(&commentsLimit, "limit", 50, "Number of comments")

	postCmd.AddCommand(postShowCmd, postCreateCmd, postUpvoteCmd)
	rootCmd.AddCommand(feedCmd, postCmd, commentCmd, commentsCmd, submoltsCmd, submoltCmd, profileCmd)
}
