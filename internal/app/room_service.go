package app

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quizparty-service/internal/domain"
	"quizparty-service/internal/quiz"
)

// Codes avoid visually ambiguous characters (0, 1, I, O).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const codeLength = 5

// RoomRepository abstracts how the registry stores rooms (in-memory, Redis, etc).
type RoomRepository interface {
	Get(code string) (*Room, bool)
	// PutIfAbsent claims the code; it reports false if another room holds it.
	PutIfAbsent(code string, room *Room) bool
	Delete(code string)
}

// BankRepository loads question bank content (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, bankID string) ([]domain.Question, error)
}

// GameConfig fixes per-room curriculum dimensions.
type GameConfig struct {
	BankID            string
	TotalLevels       int
	QuestionsPerLevel int
}

const (
	DefaultTotalLevels       = 25
	DefaultQuestionsPerLevel = 5
)

// RoomService is the single source of truth for all rooms: it owns the code
// to room mapping, arbitrates every player action, and produces the
// snapshots broadcast to participants. Rooms serialize their own mutations,
// so unrelated rooms proceed fully in parallel.
type RoomService struct {
	rooms RoomRepository
	banks BankRepository
	cfg   GameConfig
	now   func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu          sync.RWMutex
	memberships map[string]string // connection -> room code
}

func NewRoomService(rooms RoomRepository, banks BankRepository, cfg GameConfig) *RoomService {
	return NewRoomServiceWithRand(rooms, banks, cfg, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
}

// NewRoomServiceWithRand is used by tests for deterministic codes, curricula
// and timestamps.
func NewRoomServiceWithRand(rooms RoomRepository, banks BankRepository, cfg GameConfig, rnd *rand.Rand, now func() time.Time) *RoomService {
	if cfg.TotalLevels <= 0 {
		cfg.TotalLevels = DefaultTotalLevels
	}
	if cfg.QuestionsPerLevel <= 0 {
		cfg.QuestionsPerLevel = DefaultQuestionsPerLevel
	}
	return &RoomService{
		rooms:       rooms,
		banks:       banks,
		cfg:         cfg,
		now:         now,
		rnd:         rnd,
		memberships: make(map[string]string),
	}
}

// CreateRoom builds a fresh curriculum and opens a lobby owned by the
// creator. A preferred code is honored when unused; otherwise codes are
// generated until one is free.
func (s *RoomService) CreateRoom(ctx context.Context, connID, displayName, preferredCode string) (domain.Snapshot, error) {
	bank, err := s.banks.GetBank(ctx, s.cfg.BankID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	buckets, err := quiz.PartitionByDifficulty(bank)
	if err != nil {
		return domain.Snapshot{}, err
	}

	// A connection lives in at most one room.
	s.LeaveRoom(connID)

	s.rndMu.Lock()
	levels := quiz.NewCurriculumBuilder(buckets, s.rnd).Build(s.cfg.TotalLevels, s.cfg.QuestionsPerLevel)
	s.rndMu.Unlock()

	room := NewRoomWithClock("", levels, s.cfg.QuestionsPerLevel, connID, displayName, s.now)

	code := NormalizeCode(preferredCode)
	for {
		if code == "" {
			code = s.generateCode()
		}
		room.code = code
		if s.rooms.PutIfAbsent(code, room) {
			break
		}
		code = "" // collision, retry with a generated code
	}

	s.mu.Lock()
	s.memberships[connID] = code
	s.mu.Unlock()

	return room.snapshot(), nil
}

// JoinRoom adds the connection to a lobby-phase room. Re-joining with an
// identifier already present updates the display name idempotently.
func (s *RoomService) JoinRoom(code, connID, displayName string) (domain.Snapshot, error) {
	code = NormalizeCode(code)
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	snapshot, err := room.join(connID, displayName)
	if err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.Lock()
	previous, had := s.memberships[connID]
	s.memberships[connID] = code
	s.mu.Unlock()
	if had && previous != code {
		s.removeFromRoom(previous, connID)
	}
	return snapshot, nil
}

// LeaveRoom removes the connection from whichever room holds it (at most
// one). Empty rooms are destroyed immediately; an active room that drops
// below the minimum ends on the spot. The returned snapshot is nil when the
// room was destroyed, and ok is false when the connection was roomless.
func (s *RoomService) LeaveRoom(connID string) (code string, snapshot *domain.Snapshot, ok bool) {
	s.mu.Lock()
	code, ok = s.memberships[connID]
	if ok {
		delete(s.memberships, connID)
	}
	s.mu.Unlock()
	if !ok {
		return "", nil, false
	}
	return code, s.removeFromRoom(code, connID), true
}

func (s *RoomService) removeFromRoom(code, connID string) *domain.Snapshot {
	room, found := s.rooms.Get(code)
	if !found {
		return nil
	}
	snapshot, removed, empty := room.leave(connID)
	if !removed {
		return nil
	}
	if empty {
		s.rooms.Delete(code)
		return nil
	}
	return &snapshot
}

// SelectLevel stores the host's pre-start level preference.
func (s *RoomService) SelectLevel(code, initiatorID string, levelIndex int) (domain.Snapshot, error) {
	room, ok := s.rooms.Get(NormalizeCode(code))
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	return room.selectLevel(initiatorID, levelIndex)
}

// StartGame resets scores and activates the first question of the selected
// level.
func (s *RoomService) StartGame(code, initiatorID string) (domain.Snapshot, error) {
	room, ok := s.rooms.Get(NormalizeCode(code))
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	return room.start(initiatorID)
}

// SubmitAnswer records one player's answer for the active question. Once
// every current member has answered, scoring runs and the reveal is
// published in the same transition.
func (s *RoomService) SubmitAnswer(code, playerID string, optionIndex int) (domain.Snapshot, error) {
	room, ok := s.rooms.Get(NormalizeCode(code))
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	return room.submitAnswer(playerID, optionIndex)
}

// NextQuestion clears the reveal and advances within the level, or marks the
// level complete after its final question.
func (s *RoomService) NextQuestion(code, initiatorID string) (domain.Snapshot, error) {
	room, ok := s.rooms.Get(NormalizeCode(code))
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	return room.nextQuestion(initiatorID)
}

// NextLevel moves a level-complete room into the next level, or ends the
// game when the curriculum is exhausted.
func (s *RoomService) NextLevel(code, initiatorID string) (domain.Snapshot, error) {
	room, ok := s.rooms.Get(NormalizeCode(code))
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	return room.nextLevel(initiatorID)
}

// Snapshot is a pure read of the current projection.
func (s *RoomService) Snapshot(code string) (domain.Snapshot, bool) {
	room, ok := s.rooms.Get(NormalizeCode(code))
	if !ok {
		return domain.Snapshot{}, false
	}
	return room.snapshot(), true
}

// Subscribe returns a channel receiving every snapshot broadcast for the
// room. The caller must invoke the cancel function to avoid leaks.
func (s *RoomService) Subscribe(code string) (<-chan domain.Snapshot, func(), error) {
	room, ok := s.rooms.Get(NormalizeCode(code))
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch, cancel := room.subscribe()
	return ch, cancel, nil
}

// NormalizeCode upper-cases and trims an inbound room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *RoomService) generateCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[s.rnd.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
