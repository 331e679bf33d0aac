package usecases

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
)

// ExecutorRegistry dispatches execution to the executor registered for an
// activity's kind. Domain logic providers replace the built-in executors;
// the built-ins compute deterministic placeholder outcomes so the engine
// is runnable stand-alone.
type ExecutorRegistry struct {
	executors map[activity.Kind]activity.Executor
}

// NewExecutorRegistry creates a registry with the built-in executors
// registered for every kind.
func NewExecutorRegistry() *ExecutorRegistry {
	r := &ExecutorRegistry{executors: make(map[activity.Kind]activity.Executor)}
	r.Register(activity.KindGame, &GameExecutor{})
	r.Register(activity.KindTraining, &TrainingExecutor{})
	r.Register(activity.KindScouting, &ScoutingExecutor{})
	r.Register(activity.KindRest, &RestExecutor{})
	admin := &AdministrativeExecutor{}
	for _, k := range []activity.Kind{
		activity.KindAdministrative, activity.KindDeadline, activity.KindMilestone,
		activity.KindContractSigning, activity.KindContractRelease, activity.KindTrade,
	} {
		r.Register(k, admin)
	}
	return r
}

// Register installs an executor for a kind, replacing any previous one.
func (r *ExecutorRegistry) Register(kind activity.Kind, ex activity.Executor) {
	r.executors[kind] = ex
}

// Execute runs the registered executor for the activity's kind.
func (r *ExecutorRegistry) Execute(ctx context.Context, act *activity.Activity, view activity.View) (map[string]any, error) {
	ex, ok := r.executors[act.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", activity.ErrNoExecutor, act.Kind)
	}
	return ex.Execute(ctx, act, view)
}

// roll derives a deterministic value in [0, mod) from the activity's
// identity-free inputs, so replaying a day reproduces the same outcomes.
func roll(mod uint64, parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64() % mod
}

// GameExecutor computes a deterministic game outcome from the matchup and
// date. The opponent comes from the activity's meta.
type GameExecutor struct{}

func (e *GameExecutor) Execute(_ context.Context, act *activity.Activity, _ activity.View) (map[string]any, error) {
	opponent := act.Meta["opponent"]
	if opponent == "" {
		return nil, fmt.Errorf("game activity %s has no opponent", act.ID)
	}
	day := act.Date.Format("2006-01-02")
	homeScore := int(14 + roll(21, act.TeamID, opponent, day, "home"))
	awayScore := int(10 + roll(21, act.TeamID, opponent, day, "away"))
	winner := act.TeamID
	if awayScore > homeScore {
		winner = opponent
	}
	return map[string]any{
		"home":       act.TeamID,
		"away":       opponent,
		"home_score": homeScore,
		"away_score": awayScore,
		"winner":     winner,
	}, nil
}

// TrainingExecutor computes fatigue and attribute deltas for a session.
type TrainingExecutor struct{}

func (e *TrainingExecutor) Execute(_ context.Context, act *activity.Activity, _ activity.View) (map[string]any, error) {
	day := act.Date.Format("2006-01-02")
	return map[string]any{
		"team":           act.TeamID,
		"focus":          act.Resource,
		"fatigue_delta":  int(1 + roll(5, act.TeamID, day, "fatigue")),
		"attribute_gain": int(roll(3, act.TeamID, day, "gain")),
	}, nil
}

// ScoutingExecutor grades the scouted target.
type ScoutingExecutor struct{}

func (e *ScoutingExecutor) Execute(_ context.Context, act *activity.Activity, _ activity.View) (map[string]any, error) {
	target := act.Meta["target"]
	if target == "" {
		target = "draft-class"
	}
	grades := []string{"A", "B+", "B", "C+", "C"}
	day := act.Date.Format("2006-01-02")
	return map[string]any{
		"team":   act.TeamID,
		"target": target,
		"grade":  grades[roll(uint64(len(grades)), act.TeamID, target, day)],
	}, nil
}

// RestExecutor computes recovery for a rest day.
type RestExecutor struct{}

func (e *RestExecutor) Execute(_ context.Context, act *activity.Activity, _ activity.View) (map[string]any, error) {
	day := act.Date.Format("2006-01-02")
	return map[string]any{
		"team":     act.TeamID,
		"recovery": int(2 + roll(4, act.TeamID, day, "recovery")),
	}, nil
}

// AdministrativeExecutor covers the administrative-class kinds: plain
// administrative actions, deadlines, milestones, and the contract/trade
// transaction variants. The real valuation logic is a collaborator
// concern; the built-in just echoes the action with a deterministic value.
type AdministrativeExecutor struct{}

func (e *AdministrativeExecutor) Execute(_ context.Context, act *activity.Activity, _ activity.View) (map[string]any, error) {
	payload := map[string]any{
		"team":   act.TeamID,
		"action": string(act.Kind),
	}
	for k, v := range act.Meta {
		payload[k] = v
	}
	switch act.Kind {
	case activity.KindContractSigning, activity.KindContractRelease, activity.KindTrade:
		day := act.Date.Format("2006-01-02")
		payload["value"] = int(500_000 + roll(9_500_000, act.TeamID, string(act.Kind), day))
	}
	return payload, nil
}
