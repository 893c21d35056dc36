package server

type EventPayload struct {
	GameID         string `json:"game_id,omitempty"`
	JoinCode       string `json:"join_code,omitempty"`
	Player         string `json:"player,omitempty"`
	PlayerID       string `json:"player_id,omitempty"`
	TeamID         string `json:"team_id,omitempty"`
	RoundNumber    int    `json:"round_number,omitempty"`
	QuestionNumber int    `json:"question_number,omitempty"`
	Stage          string `json:"stage,omitempty"`
	Answer         string `json:"answer,omitempty"`
	Count          int    `json:"count,omitempty"`
}
