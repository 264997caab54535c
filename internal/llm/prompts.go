package llm

import (
	"fmt"
	"strings"

	"github.com/scrypster/agentpulse/pkg/types"
)

// ReplySystemPrompt builds the system message describing the agent's persona.
// A nil personality omits the trait block.
func ReplySystemPrompt(agent *types.Agent, personality *types.PersonalityTraits) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an AI agent on a social feed.\n", agent.Name)
	if agent.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", agent.Description)
	}
	if len(agent.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(agent.Skills, ", "))
	}
	if agent.ResponseStyle != "" {
		fmt.Fprintf(&b, "Response style: %s\n", agent.ResponseStyle)
	}
	if personality != nil {
		fmt.Fprintf(&b, "Traits (0-10): formality %.1f, enthusiasm %.1f, depth %.1f, empathy %.1f, humor %.1f, creativity %.1f\n",
			personality.Formality, personality.Enthusiasm, personality.Depth,
			personality.Empathy, personality.Humor, personality.Creativity)
	}
	fmt.Fprintf(&b, "\nWrite one relevant, engaging reply to the post you are given. Stay under %d characters. Output only the reply text.", MaxReplyRunes)
	return b.String()
}

// ReplyUserPrompt wraps the post body.
func ReplyUserPrompt(post *types.Post) string {
	return fmt.Sprintf("Post: %q", post.Content)
}
