package tracking

import (
	"time"

	"github.com/google/uuid"
)

// MatchResult is the persisted outcome of a game for one summoner.
type MatchResult string

const (
	// ResultWin marks a won game.
	ResultWin MatchResult = "win"
	// ResultLoss marks a lost game.
	ResultLoss MatchResult = "loss"
	// ResultUnknown marks a game whose outcome has not been reconciled.
	ResultUnknown MatchResult = "unknown"
)

// ResultFromWin maps the participant win flag onto a MatchResult.
func ResultFromWin(win bool) MatchResult {
	if win {
		return ResultWin
	}
	return ResultLoss
}

// Valid reports whether r is one of the known results.
func (r MatchResult) Valid() bool {
	switch r {
	case ResultWin, ResultLoss, ResultUnknown:
		return true
	default:
		return false
	}
}

// GameStatus describes the lifecycle of a GameState.
type GameStatus string

const (
	// StatusActive means the pre-game snapshot is captured and the game is ongoing or awaited.
	StatusActive GameStatus = "active"
	// StatusCompleted means the post-game snapshot is captured.
	StatusCompleted GameStatus = "completed"
)

// PreGameSnapshot is captured once, when the summoner is first seen in a game.
type PreGameSnapshot struct {
	GameID        int64         `json:"gameId"`
	PlatformID    string        `json:"platformId"`
	QueueID       int           `json:"queueId"`
	GameStartTime int64         `json:"gameStartTime"`
	CapturedAt    time.Time     `json:"capturedAt"`
	Rank          *RankStanding `json:"preGameRankData,omitempty"`
}

// StartedAt converts the upstream millisecond start time. Games still in loading
// report zero; the capture time stands in for them.
func (p PreGameSnapshot) StartedAt() time.Time {
	if p.GameStartTime <= 0 {
		return p.CapturedAt.UTC()
	}
	return time.UnixMilli(p.GameStartTime).UTC()
}

// PostGameSnapshot is captured once the tracked game is confirmed ended.
type PostGameSnapshot struct {
	MatchID          string        `json:"matchId"`
	ParticipantIndex int           `json:"participantIndex"`
	Result           MatchResult   `json:"gameResult"`
	ChampionName     string        `json:"championName,omitempty"`
	Kills            int           `json:"kills"`
	Deaths           int           `json:"deaths"`
	Assists          int           `json:"assists"`
	GameDuration     int64         `json:"gameDuration"`
	CapturedAt       time.Time     `json:"capturedAt"`
	Rank             *RankStanding `json:"postGameRankData,omitempty"`
}

// GameState represents one observed live game for one summoner.
type GameState struct {
	CaptureID uuid.UUID
	Summoner  Summoner
	GameID    int64
	PreGame   PreGameSnapshot
	PostGame  *PostGameSnapshot
	Status    GameStatus
}

// NewGameState creates an active state from the pre-game snapshot.
func NewGameState(summoner Summoner, pre PreGameSnapshot) GameState {
	return GameState{
		CaptureID: uuid.New(),
		Summoner:  summoner,
		GameID:    pre.GameID,
		PreGame:   pre,
		PostGame:  nil,
		Status:    StatusActive,
	}
}

// Complete returns a completed copy carrying the post-game snapshot. The receiver is left untouched.
func (g GameState) Complete(post PostGameSnapshot) GameState {
	next := g
	captured := post
	next.PostGame = &captured
	next.Status = StatusCompleted
	return next
}

// Result returns the reconciled outcome, or ResultUnknown while the game is active.
func (g GameState) Result() MatchResult {
	if g.PostGame == nil {
		return ResultUnknown
	}
	return g.PostGame.Result
}
