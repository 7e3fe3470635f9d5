package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/CareCircle/internal/assign"
)

const rerankSystemPrompt = "You are a care coordinator helping a family decide who should take a caregiving task. " +
	"Answer only with a JSON object."

// completer is what the re-ranker needs from Client.
type completer interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ReRanker asks the model to pick among the top scored candidates and to write the assignment
// message. It implements assign.ReRanker.
type ReRanker struct {
	llm completer
}

var _ assign.ReRanker = (*ReRanker)(nil)

func NewReRanker(c *Client) *ReRanker {
	return &ReRanker{llm: c}
}

// rerankReply is the JSON shape requested from the model. RecommendedMember is 1-based.
type rerankReply struct {
	RecommendedMember int    `json:"recommended_member"`
	Explanation       string `json:"explanation"`
	Message           string `json:"message"`
}

// Recommend returns the model's pick as a zero-based index into top.
func (r *ReRanker) Recommend(ctx context.Context, task assign.Task, top []assign.Ranked) (assign.Recommendation, error) {
	if len(top) == 0 {
		return assign.Recommendation{}, fmt.Errorf("no candidates to re-rank")
	}
	raw, err := r.llm.GenerateJSON(ctx, rerankSystemPrompt, buildRerankPrompt(task, top))
	if err != nil {
		return assign.Recommendation{}, err
	}
	var reply rerankReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		slog.Warn("ReRanker.Recommend: unparseable reply", "error", err, "reply", raw)
		return assign.Recommendation{}, fmt.Errorf("failed to parse re-rank reply: %w", err)
	}
	if reply.RecommendedMember < 1 || reply.RecommendedMember > len(top) {
		return assign.Recommendation{}, fmt.Errorf("recommended_member %d outside 1..%d", reply.RecommendedMember, len(top))
	}
	slog.Debug("ReRanker.Recommend: model recommendation", "member", reply.RecommendedMember,
		"memberID", top[reply.RecommendedMember-1].Candidate.MemberID)
	return assign.Recommendation{
		Index:       reply.RecommendedMember - 1,
		Explanation: strings.TrimSpace(reply.Explanation),
		Message:     strings.TrimSpace(reply.Message),
	}, nil
}

func buildRerankPrompt(task assign.Task, top []assign.Ranked) string {
	var b strings.Builder
	b.WriteString("TASK DETAILS:\n")
	fmt.Fprintf(&b, "- Description: %s\n", orDefault(task.Description, "Care task"))
	fmt.Fprintf(&b, "- Urgency: %s\n", orDefault(urgencyName(task), "medium"))
	fmt.Fprintf(&b, "- Required skills: %s\n", orDefault(strings.Join(task.RequiredSkills, ", "), "None specified"))
	b.WriteString("\nTOP CANDIDATES (with scoring):\n")
	for i, r := range top {
		s := r.Scores
		fmt.Fprintf(&b, "%d. %s: Proximity=%.0f, Skill=%.0f, Availability=%.0f, Workload=%.0f, Overall=%.0f\n",
			i+1, orDefault(r.Candidate.Name, "Member"), s.Proximity, s.Skill, s.Availability, s.Workload, s.Composite)
	}
	fmt.Fprintf(&b, "\nRecommend which member should take this task (1 to %d), give a one or two sentence explanation, "+
		"and write a short personalized message for that member.\n", len(top))
	b.WriteString(`Respond as {"recommended_member": 1, "explanation": "...", "message": "..."}`)
	return b.String()
}

func urgencyName(task assign.Task) string {
	if !task.Urgency.Valid() {
		return ""
	}
	return task.Urgency.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
