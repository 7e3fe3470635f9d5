// Package assign ranks family caregivers for a care task and picks an assignee.
//
// The Scorer is a pure function of its inputs: four coarse sub-scores (proximity, skill match,
// availability, workload) combined with fixed weights. The Assigner wraps it with the member
// directory, workload lookup and an optional re-ranker.
package assign

import (
	"log/slog"
	"sort"

	"github.com/BTreeMap/CareCircle/internal/models"
)

// Composite weights.
const (
	WeightProximity    = 0.30
	WeightSkill        = 0.30
	WeightAvailability = 0.20
	WeightWorkload     = 0.20
)

// neutralScore is used whenever a factor cannot be determined.
const neutralScore = 50.0

// Candidate is a caregiver being considered for a task.
type Candidate struct {
	MemberID     string              `json:"member_id"`
	Name         string              `json:"name"`
	ZipCode      string              `json:"zip_code"`
	Skills       []string            `json:"skills"`
	Availability models.Availability `json:"availability"`
	// ActiveTaskCount is the number of pending or in-progress tasks. Negative means unknown.
	ActiveTaskCount int `json:"active_task_count"`
}

// Task is what the scorer needs to know about the work being assigned.
type Task struct {
	Description    string         `json:"description"`
	RequiredSkills []string       `json:"required_skills"`
	Urgency        models.Urgency `json:"urgency"`
	ElderZip       string         `json:"elder_zip"`
}

// ScoreBreakdown holds the sub-scores for one candidate. Every field is in [0, 100].
type ScoreBreakdown struct {
	Proximity    float64 `json:"proximity"`
	Skill        float64 `json:"skill"`
	Availability float64 `json:"availability"`
	Workload     float64 `json:"workload"`
	Composite    float64 `json:"composite"`
}

// Ranked pairs a candidate with its scores.
type Ranked struct {
	Candidate Candidate      `json:"candidate"`
	Scores    ScoreBreakdown `json:"scores"`
}

// Scorer computes candidate rankings. It is safe for concurrent use.
type Scorer struct {
	distance DistanceEstimator
}

// NewScorer creates a Scorer. A nil estimator falls back to ZipPrefixEstimator.
func NewScorer(distance DistanceEstimator) *Scorer {
	if distance == nil {
		distance = ZipPrefixEstimator{}
	}
	return &Scorer{distance: distance}
}

// Score computes the breakdown for a single candidate.
func (s *Scorer) Score(task Task, c Candidate) ScoreBreakdown {
	proximity := neutralScore
	miles, err := s.distance.EstimateMiles(c.ZipCode, task.ElderZip)
	if err != nil {
		slog.Debug("Scorer.Score: distance unavailable, using neutral proximity", "memberID", c.MemberID, "error", err)
	} else {
		proximity = ProximityScore(miles)
	}
	b := ScoreBreakdown{
		Proximity:    proximity,
		Skill:        SkillScore(task.RequiredSkills, c.Skills),
		Availability: AvailabilityScore(c.Availability, task.Urgency),
		Workload:     WorkloadScore(c.ActiveTaskCount),
	}
	b.Composite = Composite(b.Proximity, b.Skill, b.Availability, b.Workload)
	return b
}

// ScoreCandidates scores every candidate and returns them sorted by descending composite score.
// Ties keep their input order.
func (s *Scorer) ScoreCandidates(task Task, candidates []Candidate) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c, Scores: s.Score(task, c)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Scores.Composite > ranked[j].Scores.Composite
	})
	return ranked
}

// Composite combines sub-scores with the fixed weights.
func Composite(proximity, skill, availability, workload float64) float64 {
	return WeightProximity*proximity + WeightSkill*skill + WeightAvailability*availability + WeightWorkload*workload
}

// ProximityScore buckets a distance in miles.
func ProximityScore(miles float64) float64 {
	switch {
	case miles < 1:
		return 100
	case miles < 5:
		return 80
	case miles < 10:
		return 60
	case miles < 25:
		return 40
	default:
		return 20
	}
}

// SkillScore is the percentage of required skills the candidate has. No required skills is neutral;
// a candidate with no listed skills scores 20.
func SkillScore(required, skills []string) float64 {
	if len(required) == 0 {
		return neutralScore
	}
	if len(skills) == 0 {
		return 20
	}
	have := make(map[string]struct{}, len(skills))
	for _, sk := range skills {
		have[sk] = struct{}{}
	}
	matches := 0
	for _, r := range required {
		if _, ok := have[r]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(required)) * 100
}

// AvailabilityScore weighs declared availability against urgency.
func AvailabilityScore(a models.Availability, u models.Urgency) float64 {
	switch a {
	case models.AvailabilityFlexible:
		return 100
	case models.AvailabilityWeekends:
		if u == models.UrgencyUrgent {
			return 30
		}
		return 70
	case models.AvailabilityLimited:
		if u == models.UrgencyLow {
			return 50
		}
		return 20
	default:
		return neutralScore
	}
}

// WorkloadScore favours candidates with fewer active tasks. A negative count is unknown.
func WorkloadScore(active int) float64 {
	switch {
	case active < 0:
		return neutralScore
	case active == 0:
		return 100
	case active == 1:
		return 80
	case active == 2:
		return 60
	case active == 3:
		return 40
	default:
		return 20
	}
}
