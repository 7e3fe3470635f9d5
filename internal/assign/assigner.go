package assign

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/CareCircle/internal/models"
)

// ReRankLimit is how many top-ranked candidates a ReRanker may choose between.
const ReRankLimit = 3

// Fallback recommendation text used when no re-ranker is configured or it fails.
const (
	DefaultExplanation = "Selected based on scoring system"
	DefaultMessage     = "You have been assigned a new care task. Please review and accept."
)

// MemberDirectory lists the caregivers of a family.
type MemberDirectory interface {
	ListMembers(familyID string) ([]models.FamilyMember, error)
}

// WorkloadLookup counts a member's pending and in-progress tasks.
type WorkloadLookup interface {
	CountActiveTasks(memberID string) (int, error)
}

// Recommendation is a re-ranker's pick among the top candidates. Index is zero-based.
type Recommendation struct {
	Index       int    `json:"index"`
	Explanation string `json:"explanation"`
	Message     string `json:"message"`
}

// ReRanker may override the scorer's choice among the top ReRankLimit candidates.
type ReRanker interface {
	Recommend(ctx context.Context, task Task, top []Ranked) (Recommendation, error)
}

// Assignment is the result of Assign. Member is nil when the family has no caregivers.
type Assignment struct {
	Member         *models.FamilyMember `json:"member,omitempty"`
	Ranked         []Ranked             `json:"ranked"`
	Recommendation Recommendation       `json:"recommendation"`
}

// Assigner selects an assignee for a task using the family directory and current workloads.
type Assigner struct {
	scorer   *Scorer
	members  MemberDirectory
	workload WorkloadLookup
	reranker ReRanker
}

// AssignerOption configures an Assigner.
type AssignerOption func(*Assigner)

// WithReRanker installs a re-ranker over the top candidates.
func WithReRanker(r ReRanker) AssignerOption {
	return func(a *Assigner) {
		a.reranker = r
	}
}

// NewAssigner creates an Assigner. A nil scorer uses NewScorer(nil).
func NewAssigner(scorer *Scorer, members MemberDirectory, workload WorkloadLookup, opts ...AssignerOption) *Assigner {
	if scorer == nil {
		scorer = NewScorer(nil)
	}
	a := &Assigner{scorer: scorer, members: members, workload: workload}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Rank scores every member of the family for the task. It has no side effects.
func (a *Assigner) Rank(familyID string, task Task) ([]Ranked, []models.FamilyMember, error) {
	members, err := a.members.ListMembers(familyID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list members for family %s: %w", familyID, err)
	}
	candidates := make([]Candidate, len(members))
	for i, m := range members {
		count, err := a.workload.CountActiveTasks(m.ID)
		if err != nil {
			slog.Warn("Assigner.Rank: workload lookup failed, using neutral score", "memberID", m.ID, "error", err)
			count = -1
		}
		candidates[i] = Candidate{
			MemberID:        m.ID,
			Name:            m.Name,
			ZipCode:         m.ZipCode,
			Skills:          m.Skills,
			Availability:    m.Availability,
			ActiveTaskCount: count,
		}
	}
	return a.scorer.ScoreCandidates(task, candidates), members, nil
}

// Assign ranks the family's members and picks one. The re-ranker, if any, may choose among the
// top candidates; an error or out-of-range choice falls back to the highest composite score.
func (a *Assigner) Assign(ctx context.Context, familyID string, task Task) (Assignment, error) {
	ranked, members, err := a.Rank(familyID, task)
	if err != nil {
		return Assignment{}, err
	}
	rec := Recommendation{Index: 0, Explanation: DefaultExplanation, Message: DefaultMessage}
	if len(ranked) == 0 {
		slog.Warn("Assigner.Assign: no family members, task stays unassigned", "familyID", familyID)
		return Assignment{Ranked: ranked, Recommendation: rec}, nil
	}

	if a.reranker != nil {
		top := ranked[:min(ReRankLimit, len(ranked))]
		got, err := a.reranker.Recommend(ctx, task, top)
		switch {
		case err != nil:
			slog.Warn("Assigner.Assign: re-rank failed, using top score", "familyID", familyID, "error", err)
		case got.Index < 0 || got.Index >= len(top):
			slog.Warn("Assigner.Assign: re-rank index out of range, using top score", "familyID", familyID, "index", got.Index)
		default:
			rec = got
			if rec.Explanation == "" {
				rec.Explanation = DefaultExplanation
			}
			if rec.Message == "" {
				rec.Message = DefaultMessage
			}
		}
	}

	chosenID := ranked[rec.Index].Candidate.MemberID
	for i := range members {
		if members[i].ID == chosenID {
			m := members[i]
			slog.Debug("Assigner.Assign: selected member", "familyID", familyID, "memberID", m.ID,
				"composite", ranked[rec.Index].Scores.Composite, "explanation", rec.Explanation)
			return Assignment{Member: &m, Ranked: ranked, Recommendation: rec}, nil
		}
	}
	return Assignment{}, fmt.Errorf("ranked member %s not found in family %s", chosenID, familyID)
}
