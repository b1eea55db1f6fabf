package app

import (
	"sort"
	"sync"
	"time"

	"quizparty-service/internal/domain"
)

const (
	// PlayerLimit caps active players per room.
	PlayerLimit = 4
	// MinPlayers is the minimum room size for a game to start or continue.
	MinPlayers = 2
)

type playerState struct {
	id          string
	displayName string
	score       int
	joinedAt    time.Time
}

// Room owns all shared state of one game session. Every transition runs
// under the room's mutex, so concurrent actions from different connections
// serialize into a single consistent view.
type Room struct {
	mu sync.Mutex

	code              string
	phase             domain.Phase
	hostID            string
	players           []*playerState
	levels            [][]domain.Question
	levelIndex        int
	questionInLevel   int
	questionsPerLevel int
	selectedLevel     int // -1 when the host has not picked one
	answers           map[string]int
	reveal            *domain.Reveal
	lastAnswer        *domain.LastAnswer

	now         func() time.Time
	subscribers map[chan domain.Snapshot]struct{}
}

// NewRoom builds a lobby-phase room with the creator as host. The curriculum
// is fixed for the room's lifetime.
func NewRoom(code string, levels [][]domain.Question, questionsPerLevel int, hostID, hostName string) *Room {
	return NewRoomWithClock(code, levels, questionsPerLevel, hostID, hostName, time.Now)
}

// NewRoomWithClock allows deterministic timestamps in tests.
func NewRoomWithClock(code string, levels [][]domain.Question, questionsPerLevel int, hostID, hostName string, now func() time.Time) *Room {
	return &Room{
		code:              code,
		phase:             domain.PhaseLobby,
		hostID:            hostID,
		players:           []*playerState{{id: hostID, displayName: hostName, joinedAt: now()}},
		levels:            levels,
		questionsPerLevel: questionsPerLevel,
		selectedLevel:     -1,
		answers:           make(map[string]int),
		now:               now,
		subscribers:       make(map[chan domain.Snapshot]struct{}),
	}
}

func (r *Room) join(connID, displayName string) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != domain.PhaseLobby {
		return domain.Snapshot{}, domain.ErrRoomStarted
	}
	if p := r.findLocked(connID); p != nil {
		// Reconnect with the same handle refreshes the name, never duplicates.
		p.displayName = displayName
		return r.broadcastLocked(), nil
	}
	if len(r.players) >= PlayerLimit {
		return domain.Snapshot{}, domain.ErrRoomFull
	}
	r.players = append(r.players, &playerState{
		id:          connID,
		displayName: displayName,
		joinedAt:    r.now(),
	})
	sort.SliceStable(r.players, func(i, j int) bool {
		return r.players[i].joinedAt.Before(r.players[j].joinedAt)
	})
	return r.broadcastLocked(), nil
}

// leave removes the player, transferring host role to the earliest-joined
// survivor. It reports whether the player was a member and whether the room
// is now empty (and should be destroyed by the registry).
func (r *Room) leave(connID string) (snapshot domain.Snapshot, removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, p := range r.players {
		if p.id == connID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.Snapshot{}, false, false
	}
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	delete(r.answers, connID)

	if r.hostID == connID {
		if len(r.players) > 0 {
			r.hostID = r.players[0].id
		} else {
			r.hostID = ""
		}
	}
	if len(r.players) == 0 {
		return domain.Snapshot{}, true, true
	}

	if r.phase == domain.PhaseActive {
		if len(r.players) < MinPlayers {
			// An in-progress game cannot continue under-strength.
			r.phase = domain.PhaseEnded
			r.answers = make(map[string]int)
			r.reveal = nil
		} else if r.reveal == nil && len(r.answers) == len(r.players) {
			// The departed player was the only one still unanswered; the
			// threshold is re-evaluated against current membership so their
			// absence cannot block the reveal.
			r.finishQuestionLocked()
		}
	}
	return r.broadcastLocked(), true, false
}

func (r *Room) selectLevel(initiatorID string, levelIndex int) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hostID != initiatorID {
		return domain.Snapshot{}, domain.ErrNotHost
	}
	if r.phase != domain.PhaseLobby {
		return domain.Snapshot{}, domain.ErrWrongPhase
	}
	if levelIndex < 0 || levelIndex >= len(r.levels) {
		return domain.Snapshot{}, domain.ErrInvalidLevel
	}
	r.selectedLevel = levelIndex
	return r.broadcastLocked(), nil
}

func (r *Room) start(initiatorID string) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hostID != initiatorID {
		return domain.Snapshot{}, domain.ErrNotHost
	}
	if len(r.players) < MinPlayers {
		return domain.Snapshot{}, domain.ErrMissingPlayers
	}
	for _, p := range r.players {
		p.score = 0
	}
	r.levelIndex = 0
	if r.selectedLevel >= 0 {
		r.levelIndex = r.selectedLevel
	}
	r.questionInLevel = 0
	r.answers = make(map[string]int)
	r.reveal = nil
	r.lastAnswer = nil
	r.phase = domain.PhaseActive
	return r.broadcastLocked(), nil
}

func (r *Room) submitAnswer(playerID string, optionIndex int) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != domain.PhaseActive {
		return domain.Snapshot{}, domain.ErrNotActive
	}
	if r.findLocked(playerID) == nil {
		return domain.Snapshot{}, domain.ErrUnknownPlayer
	}
	question := r.currentQuestionLocked()
	if question == nil {
		return domain.Snapshot{}, domain.ErrNotActive
	}
	if optionIndex < 0 || optionIndex >= len(question.Options) {
		return domain.Snapshot{}, domain.ErrInvalidOption
	}
	if _, answered := r.answers[playerID]; answered {
		// Duplicate submission (retry after a dropped ack) is a no-op success.
		return r.snapshotLocked(), nil
	}
	r.answers[playerID] = optionIndex
	if len(r.answers) < len(r.players) {
		return r.broadcastLocked(), nil
	}
	r.finishQuestionLocked()
	r.lastAnswer = &domain.LastAnswer{
		PlayerID:     playerID,
		QuestionID:   question.ID,
		ChosenIndex:  optionIndex,
		CorrectIndex: question.AnswerIndex,
		IsCorrect:    optionIndex == question.AnswerIndex,
	}
	// The room stays active with the reveal populated until the host
	// advances, so slow clients never see the next question early.
	return r.broadcastLocked(), nil
}

func (r *Room) nextQuestion(initiatorID string) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hostID != initiatorID {
		return domain.Snapshot{}, domain.ErrNotHost
	}
	if r.phase != domain.PhaseActive {
		return domain.Snapshot{}, domain.ErrWrongPhase
	}
	r.answers = make(map[string]int)
	r.reveal = nil
	r.lastAnswer = nil
	if r.questionInLevel+1 >= r.questionsPerLevel {
		r.phase = domain.PhaseLevelComplete
		return r.broadcastLocked(), nil
	}
	r.questionInLevel++
	return r.broadcastLocked(), nil
}

func (r *Room) nextLevel(initiatorID string) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hostID != initiatorID {
		return domain.Snapshot{}, domain.ErrNotHost
	}
	if r.phase != domain.PhaseLevelComplete {
		// Duplicate advance clicks are a no-op success.
		return r.snapshotLocked(), nil
	}
	if r.levelIndex+1 >= len(r.levels) {
		r.phase = domain.PhaseEnded
		return r.broadcastLocked(), nil
	}
	r.levelIndex++
	r.questionInLevel = 0
	r.answers = make(map[string]int)
	r.reveal = nil
	r.lastAnswer = nil
	r.phase = domain.PhaseActive
	return r.broadcastLocked(), nil
}

// finishQuestionLocked scores every recorded answer and publishes the
// reveal. Only here does the correct option index become client-visible.
func (r *Room) finishQuestionLocked() {
	question := r.currentQuestionLocked()
	if question == nil || len(r.answers) == 0 {
		return
	}
	choices := make([]domain.RevealChoice, 0, len(r.answers))
	for _, p := range r.players {
		chosen, ok := r.answers[p.id]
		if !ok {
			continue
		}
		choices = append(choices, domain.RevealChoice{PlayerID: p.id, ChosenIndex: chosen})
		if chosen == question.AnswerIndex {
			p.score++
		}
	}
	r.reveal = &domain.Reveal{
		CorrectIndex: question.AnswerIndex,
		Choices:      choices,
	}
}

func (r *Room) findLocked(connID string) *playerState {
	for _, p := range r.players {
		if p.id == connID {
			return p
		}
	}
	return nil
}

// currentQuestionLocked derives the live question; rooms outside the active
// phase have none.
func (r *Room) currentQuestionLocked() *domain.Question {
	if r.phase != domain.PhaseActive {
		return nil
	}
	if r.levelIndex >= len(r.levels) {
		return nil
	}
	level := r.levels[r.levelIndex]
	if r.questionInLevel >= len(level) {
		return nil
	}
	return &level[r.questionInLevel]
}

func (r *Room) snapshot() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	initial := r.snapshotLocked()
	r.mu.Unlock()

	ch <- initial

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Room) broadcastLocked() domain.Snapshot {
	snapshot := r.snapshotLocked()
	for ch := range r.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale update so a slow client cannot block the room.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
	return snapshot
}

func (r *Room) snapshotLocked() domain.Snapshot {
	players := make([]domain.PlayerView, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, domain.PlayerView{
			ID:          p.id,
			DisplayName: p.displayName,
			Score:       p.score,
			JoinedAt:    p.joinedAt,
		})
	}

	var activeQuestion *domain.QuestionView
	if q := r.currentQuestionLocked(); q != nil {
		// The answer index stays server-side until the reveal.
		activeQuestion = &domain.QuestionView{
			ID:      q.ID,
			Prompt:  q.Prompt,
			Options: q.Options,
		}
	}

	var selected *int
	if r.selectedLevel >= 0 {
		idx := r.selectedLevel
		selected = &idx
	}

	return domain.Snapshot{
		Code:               r.code,
		Phase:              r.phase,
		HostID:             r.hostID,
		Players:            players,
		ActiveQuestion:     activeQuestion,
		LevelIndex:         r.levelIndex,
		TotalLevels:        len(r.levels),
		QuestionInLevel:    r.questionInLevel,
		QuestionsPerLevel:  r.questionsPerLevel,
		AnsweredCount:      len(r.answers),
		SelectedLevelIndex: selected,
		Reveal:             r.reveal,
		LastAnswer:         r.lastAnswer,
		UpdatedAt:          r.now(),
	}
}
