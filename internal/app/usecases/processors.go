package usecases

import (
	"fmt"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
)

// The built-in processors apply outcomes through the season ledger, which
// is keyed by activity id. The ledger check is the replay guard: applying
// the same result twice after an intervening rollback is a no-op the
// second time, so counters and standings never double-apply.

// payloadInt reads an integer payload field regardless of whether the
// payload came straight from an executor (int) or through a codec
// round-trip (int64/float64).
func payloadInt(payload map[string]any, key string) (int, error) {
	v, ok := payload[key]
	if !ok {
		return 0, fmt.Errorf("payload missing %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("payload field %q has type %T, want integer", key, v)
}

func payloadString(payload map[string]any, key string) (string, error) {
	v, ok := payload[key]
	if !ok {
		return "", fmt.Errorf("payload missing %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("payload field %q has type %T, want string", key, v)
	}
	return s, nil
}

// GameProcessor applies a game result to the standings table and ledger.
type GameProcessor struct{}

func (p *GameProcessor) Process(res *activity.Result, act *activity.Activity, state *season.State) error {
	if state.HasLedgerEntry(act.Kind, act.ID) {
		return nil
	}
	home, err := payloadString(res.Payload, "home")
	if err != nil {
		return err
	}
	away, err := payloadString(res.Payload, "away")
	if err != nil {
		return err
	}
	homeScore, err := payloadInt(res.Payload, "home_score")
	if err != nil {
		return err
	}
	awayScore, err := payloadInt(res.Payload, "away_score")
	if err != nil {
		return err
	}

	h, a := state.Team(home), state.Team(away)
	h.PointsFor += homeScore
	h.PointsAgainst += awayScore
	a.PointsFor += awayScore
	a.PointsAgainst += homeScore
	switch {
	case homeScore > awayScore:
		h.Wins++
		a.Losses++
	case awayScore > homeScore:
		a.Wins++
		h.Losses++
	default:
		h.Ties++
		a.Ties++
	}

	state.AppendLedger(season.LedgerEntry{
		ActivityID: act.ID,
		Kind:       act.Kind,
		Date:       act.Date,
		TeamID:     act.TeamID,
		Note:       fmt.Sprintf("%s %d - %s %d", home, homeScore, away, awayScore),
	})
	return nil
}

// TrainingProcessor records a training session's fatigue cost.
type TrainingProcessor struct{}

func (p *TrainingProcessor) Process(res *activity.Result, act *activity.Activity, state *season.State) error {
	if state.HasLedgerEntry(act.Kind, act.ID) {
		return nil
	}
	fatigue, err := payloadInt(res.Payload, "fatigue_delta")
	if err != nil {
		return err
	}
	state.AppendLedger(season.LedgerEntry{
		ActivityID: act.ID,
		Kind:       act.Kind,
		Date:       act.Date,
		TeamID:     act.TeamID,
		Note:       fmt.Sprintf("fatigue +%d", fatigue),
	})
	return nil
}

// ScoutingProcessor records a scouting report.
type ScoutingProcessor struct{}

func (p *ScoutingProcessor) Process(res *activity.Result, act *activity.Activity, state *season.State) error {
	if state.HasLedgerEntry(act.Kind, act.ID) {
		return nil
	}
	target, err := payloadString(res.Payload, "target")
	if err != nil {
		return err
	}
	grade, err := payloadString(res.Payload, "grade")
	if err != nil {
		return err
	}
	state.AppendLedger(season.LedgerEntry{
		ActivityID: act.ID,
		Kind:       act.Kind,
		Date:       act.Date,
		TeamID:     act.TeamID,
		Note:       fmt.Sprintf("%s graded %s", target, grade),
	})
	return nil
}

// RestProcessor records a rest day's recovery.
type RestProcessor struct{}

func (p *RestProcessor) Process(res *activity.Result, act *activity.Activity, state *season.State) error {
	if state.HasLedgerEntry(act.Kind, act.ID) {
		return nil
	}
	recovery, err := payloadInt(res.Payload, "recovery")
	if err != nil {
		return err
	}
	state.AppendLedger(season.LedgerEntry{
		ActivityID: act.ID,
		Kind:       act.Kind,
		Date:       act.Date,
		TeamID:     act.TeamID,
		Note:       fmt.Sprintf("recovery +%d", recovery),
	})
	return nil
}

// AdministrativeProcessor records administrative-class outcomes: plain
// administrative actions, deadlines, milestones, and contract/trade
// transactions.
type AdministrativeProcessor struct{}

func (p *AdministrativeProcessor) Process(res *activity.Result, act *activity.Activity, state *season.State) error {
	if state.HasLedgerEntry(act.Kind, act.ID) {
		return nil
	}
	action, err := payloadString(res.Payload, "action")
	if err != nil {
		return err
	}
	note := action
	if v, verr := payloadInt(res.Payload, "value"); verr == nil {
		note = fmt.Sprintf("%s ($%d)", action, v)
	}
	state.AppendLedger(season.LedgerEntry{
		ActivityID: act.ID,
		Kind:       act.Kind,
		Date:       act.Date,
		TeamID:     act.TeamID,
		Note:       note,
	})
	return nil
}
