package models

import "time"

// EventType 事件类型
type EventType string

const (
	EventGameStarted      EventType = "game_started"
	EventNightAction      EventType = "night_action"
	EventDeath            EventType = "death"
	EventLastWords        EventType = "last_words"
	EventSpeech           EventType = "speech"
	EventVoteCast         EventType = "vote_cast"
	EventPlayerEliminated EventType = "player_eliminated"
	EventVoteTied         EventType = "vote_tied"
	EventHunterShot       EventType = "hunter_shot"
	EventGameEnded        EventType = "game_ended"
	EventGameAborted      EventType = "game_aborted"
	EventStateDump        EventType = "state_dump"
	EventMVPVote          EventType = "mvp_vote"
	EventMVPResult        EventType = "mvp_result"
)

// Event 追加写入的事件记录，只在状态变更应用之后产生
type Event struct {
	GameID string       `json:"game_id"`
	Seq    int          `json:"seq"`
	Type   EventType    `json:"type"`
	Night  int          `json:"night"`
	Phase  Phase        `json:"phase"`
	Actor  int          `json:"actor"`
	Target int          `json:"target"`
	Action string       `json:"action,omitempty"`
	Cause  CauseOfDeath `json:"cause,omitempty"`
	Result Result       `json:"result,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Time   time.Time    `json:"time"`
}
