package domain

import "time"

// Phase is a room's current stage in its lifecycle.
type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseActive        Phase = "active"
	PhaseLevelComplete Phase = "level-complete"
	PhaseEnded         Phase = "ended"
)

// Difficulty tiers for question content.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is one multiple-choice question from the bank. AnswerIndex points
// into Options and is never serialized into snapshots before a reveal.
type Question struct {
	ID          string     `json:"id"`
	Difficulty  Difficulty `json:"difficulty"`
	Prompt      string     `json:"prompt"`
	Options     []string   `json:"options"`
	AnswerIndex int        `json:"answerIndex"`
}

// QuestionView is the client-safe projection of the active question.
type QuestionView struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// PlayerView is a snapshot-friendly view of a room member.
type PlayerView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// RevealChoice pairs a player with the option they picked.
type RevealChoice struct {
	PlayerID    string `json:"playerId"`
	ChosenIndex int    `json:"chosenIndex"`
}

// Reveal exposes the correct option and everyone's choices. It exists only
// once every current room member has answered the active question.
type Reveal struct {
	CorrectIndex int            `json:"correctIndex"`
	Choices      []RevealChoice `json:"choices"`
}

// LastAnswer summarizes the submission that completed the current question.
type LastAnswer struct {
	PlayerID     string `json:"playerId"`
	QuestionID   string `json:"questionId"`
	ChosenIndex  int    `json:"chosenIndex"`
	CorrectIndex int    `json:"correctIndex"`
	IsCorrect    bool   `json:"isCorrect"`
}

// Snapshot is the read-only projection of room state broadcast to clients.
// Clients are stateless re-renderers of the latest snapshot; it is the only
// channel through which they learn of state changes.
type Snapshot struct {
	Code               string        `json:"code"`
	Phase              Phase         `json:"phase"`
	HostID             string        `json:"hostId"`
	Players            []PlayerView  `json:"players"`
	ActiveQuestion     *QuestionView `json:"activeQuestion"`
	LevelIndex         int           `json:"levelIndex"`
	TotalLevels        int           `json:"totalLevels"`
	QuestionInLevel    int           `json:"questionInLevel"`
	QuestionsPerLevel  int           `json:"questionsPerLevel"`
	AnsweredCount      int           `json:"answeredCount"`
	SelectedLevelIndex *int          `json:"selectedLevelIndex"`
	Reveal             *Reveal       `json:"reveal"`
	LastAnswer         *LastAnswer   `json:"lastAnswer"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}
