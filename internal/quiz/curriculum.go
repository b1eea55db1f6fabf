package quiz

import (
	"fmt"
	"math/rand"

	"quizparty-service/internal/domain"
)

// DifficultyPattern fixes which tier each slot of a level draws from,
// cycled by slot index when a level holds more than five questions.
var DifficultyPattern = []domain.Difficulty{
	domain.DifficultyEasy,
	domain.DifficultyEasy,
	domain.DifficultyMedium,
	domain.DifficultyMedium,
	domain.DifficultyHard,
}

// Buckets holds the question bank partitioned by difficulty tier.
type Buckets map[domain.Difficulty][]domain.Question

// PartitionByDifficulty groups the bank into tier buckets. An empty tier is
// an error because level generation would stall on it, so callers can fail
// fast at load time.
func PartitionByDifficulty(bank []domain.Question) (Buckets, error) {
	buckets := Buckets{
		domain.DifficultyEasy:   nil,
		domain.DifficultyMedium: nil,
		domain.DifficultyHard:   nil,
	}
	for _, q := range bank {
		if _, ok := buckets[q.Difficulty]; !ok {
			return nil, fmt.Errorf("question %s: unknown difficulty %q", q.ID, q.Difficulty)
		}
		buckets[q.Difficulty] = append(buckets[q.Difficulty], q)
	}
	for _, tier := range DifficultyPattern {
		if len(buckets[tier]) == 0 {
			return nil, fmt.Errorf("question bank has no %s questions", tier)
		}
	}
	return buckets, nil
}

// CurriculumBuilder materializes per-room level curricula from tier buckets.
// The random source is injected so curricula are deterministic under a
// seeded source.
type CurriculumBuilder struct {
	buckets Buckets
	rnd     *rand.Rand
}

func NewCurriculumBuilder(buckets Buckets, rnd *rand.Rand) *CurriculumBuilder {
	return &CurriculumBuilder{buckets: buckets, rnd: rnd}
}

// Build returns totalLevels levels of questionsPerLevel questions each.
// Every slot draws uniformly (with replacement) from its pattern tier, and
// each drawn question gets a freshly shuffled option order with the answer
// index relocated. Randomization happens once here for the room's lifetime.
func (b *CurriculumBuilder) Build(totalLevels, questionsPerLevel int) [][]domain.Question {
	levels := make([][]domain.Question, 0, totalLevels)
	for lvl := 0; lvl < totalLevels; lvl++ {
		level := make([]domain.Question, 0, questionsPerLevel)
		for slot := 0; slot < questionsPerLevel; slot++ {
			tier := DifficultyPattern[slot%len(DifficultyPattern)]
			pool := b.buckets[tier]
			drawn := pool[b.rnd.Intn(len(pool))]
			level = append(level, b.shuffleOptions(drawn))
		}
		levels = append(levels, level)
	}
	return levels
}

// shuffleOptions returns a copy of q with a uniform random permutation of its
// options and the answer index pointing at the same option text.
func (b *CurriculumBuilder) shuffleOptions(q domain.Question) domain.Question {
	options := make([]string, len(q.Options))
	copy(options, q.Options)

	answer := q.AnswerIndex
	for i := len(options) - 1; i > 0; i-- {
		j := b.rnd.Intn(i + 1)
		options[i], options[j] = options[j], options[i]
		switch answer {
		case i:
			answer = j
		case j:
			answer = i
		}
	}

	q.Options = options
	q.AnswerIndex = answer
	return q
}
