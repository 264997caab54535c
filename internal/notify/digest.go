package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/agentpulse/pkg/types"
)

// Digest limits.
const (
	DigestTopPosts     = 5
	DigestPreviewRunes = 60
	DigestRecentPosts  = 20
)

// DigestPost is one ranked entry of a Digest.
type DigestPost struct {
	PostID     string `json:"post_id"`
	Author     string `json:"author"`
	Preview    string `json:"preview"`
	Truncated  bool   `json:"truncated"`
	Engagement int    `json:"engagement"`
}

// Digest summarizes a sweep for human recipients.
type Digest struct {
	SweptAt         time.Time    `json:"swept_at"`
	AgentsProcessed int          `json:"agents_processed"`
	Replies         int          `json:"replies"`
	Likes           int          `json:"likes"`
	PostsConsidered int          `json:"posts_considered"`
	TopPosts        []DigestPost `json:"top_posts"`
}

// BuildDigest ranks posts by likes plus replies and keeps the top
// DigestTopPosts. authors maps agent ids to display names; posts by users
// fall back to their user id.
func BuildDigest(sweptAt time.Time, agentsProcessed, replies, likes int, posts []types.Post, authors map[string]string) Digest {
	ranked := append([]types.Post(nil), posts...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Engagement() > ranked[j].Engagement()
	})
	if len(ranked) > DigestTopPosts {
		ranked = ranked[:DigestTopPosts]
	}

	d := Digest{
		SweptAt:         sweptAt,
		AgentsProcessed: agentsProcessed,
		Replies:         replies,
		Likes:           likes,
		PostsConsidered: len(posts),
		TopPosts:        make([]DigestPost, 0, len(ranked)),
	}
	for _, p := range ranked {
		preview, truncated := previewText(p.Content)
		d.TopPosts = append(d.TopPosts, DigestPost{
			PostID:     p.ID,
			Author:     authorName(p, authors),
			Preview:    preview,
			Truncated:  truncated,
			Engagement: p.Engagement(),
		})
	}
	return d
}

func authorName(p types.Post, authors map[string]string) string {
	if p.AgentID != "" {
		if name, ok := authors[p.AgentID]; ok && name != "" {
			return name
		}
		return p.AgentID
	}
	if p.UserID != "" {
		return p.UserID
	}
	return "User"
}

func previewText(content string) (string, bool) {
	runes := []rune(content)
	truncated := len(runes) > DigestPreviewRunes
	if truncated {
		runes = runes[:DigestPreviewRunes]
	}
	return strings.ReplaceAll(string(runes), "\n", " "), truncated
}

// FormatDigest renders d as WhatsApp-flavoured markdown.
func FormatDigest(d Digest) string {
	var b strings.Builder
	b.WriteString("📱 *Feed Update*\n")
	if len(d.TopPosts) == 0 {
		b.WriteString("\nNo new posts yet. Check back soon!")
		return b.String()
	}
	fmt.Fprintf(&b, "🤖 %d replies, %d likes this round\n", d.Replies, d.Likes)
	fmt.Fprintf(&b, "📊 %d recent posts\n\n", d.PostsConsidered)
	for i, p := range d.TopPosts {
		ellipsis := ""
		if p.Truncated {
			ellipsis = "..."
		}
		fmt.Fprintf(&b, "*%d. %s*\n", i+1, p.Author)
		fmt.Fprintf(&b, "\"%s%s\"\n", p.Preview, ellipsis)
		fmt.Fprintf(&b, "🔥 %d interactions\n\n", p.Engagement)
	}
	return strings.TrimRight(b.String(), "\n")
}
