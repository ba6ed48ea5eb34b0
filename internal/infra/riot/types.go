package riot

// CurrentGame is the spectator-v5 active game payload, reduced to the fields the tracker reads.
type CurrentGame struct {
	GameID            int64                    `json:"gameId"`
	PlatformID        string                   `json:"platformId"`
	GameMode          string                   `json:"gameMode"`
	GameType          string                   `json:"gameType"`
	GameQueueConfigID int                      `json:"gameQueueConfigId"`
	GameStartTime     int64                    `json:"gameStartTime"`
	GameLength        int64                    `json:"gameLength"`
	Participants      []CurrentGameParticipant `json:"participants"`
}

// CurrentGameParticipant is one player in an active game.
type CurrentGameParticipant struct {
	PUUID      string `json:"puuid"`
	ChampionID int64  `json:"championId"`
	TeamID     int    `json:"teamId"`
}

// Match is the match-v5 payload.
type Match struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

// MatchMetadata lists participants by PUUID in the same order as Info.Participants.
type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

// MatchInfo carries the game summary.
type MatchInfo struct {
	GameID           int64              `json:"gameId"`
	PlatformID       string             `json:"platformId"`
	QueueID          int                `json:"queueId"`
	GameDuration     int64              `json:"gameDuration"`
	GameEndTimestamp int64              `json:"gameEndTimestamp"`
	Participants     []MatchParticipant `json:"participants"`
}

// MatchParticipant is one player's line in a finished match.
type MatchParticipant struct {
	PUUID        string `json:"puuid"`
	ChampionName string `json:"championName"`
	TeamID       int    `json:"teamId"`
	Kills        int    `json:"kills"`
	Deaths       int    `json:"deaths"`
	Assists      int    `json:"assists"`
	Win          bool   `json:"win"`
}

// ParticipantPUUIDs returns participant identities in payload order.
func (m *Match) ParticipantPUUIDs() []string {
	if m == nil {
		return nil
	}
	if len(m.Metadata.Participants) > 0 {
		return m.Metadata.Participants
	}
	out := make([]string, 0, len(m.Info.Participants))
	for _, p := range m.Info.Participants {
		out = append(out, p.PUUID)
	}
	return out
}

// Participant returns the participant at idx, if present.
func (m *Match) Participant(idx int) (MatchParticipant, bool) {
	if m == nil || idx < 0 || idx >= len(m.Info.Participants) {
		return MatchParticipant{}, false
	}
	return m.Info.Participants[idx], true
}
