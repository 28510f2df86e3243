// Package questionbank holds the topic-keyed question pools games are drawn from.
package questionbank

import (
	_ "embed"
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtinYAML []byte

// ErrEmptyPool is returned when a topic has no questions to draw from.
var ErrEmptyPool = errors.New("question pool is empty")

// Question is a pool entry; it becomes a models.Question once drawn into a game.
type Question struct {
	Text         string   `yaml:"text"`
	Options      []string `yaml:"options"`
	AnswerIndex  int      `yaml:"answer_index"`
	TimeLimitSec int      `yaml:"time_limit"`
}

// Validate checks the entry can be played.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question text is empty")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %q needs at least 2 options, has %d", q.Text, len(q.Options))
	}
	if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
		return fmt.Errorf("question %q answer_index %d out of range [0,%d)", q.Text, q.AnswerIndex, len(q.Options))
	}
	if q.TimeLimitSec <= 0 {
		return fmt.Errorf("question %q time_limit must be positive", q.Text)
	}
	return nil
}

// File is the on-disk layout of a question bank.
type File struct {
	DefaultTopic string                `yaml:"default_topic"`
	Topics       map[string][]Question `yaml:"topics"`
}

// Bank is a registry of topic pools.
type Bank struct {
	mu           sync.Mutex
	topics       map[string][]Question
	defaultTopic string
	rnd          *mathrand.Rand
}

// New creates an empty bank. Unknown topics fall back to defaultTopic.
func New(defaultTopic string) *Bank {
	return &Bank{
		topics:       make(map[string][]Question),
		defaultTopic: normalize(defaultTopic),
		rnd:          mathrand.New(mathrand.NewPCG(mathrand.Uint64(), mathrand.Uint64())),
	}
}

// WithSeed makes draws deterministic. Intended for tests.
func (b *Bank) WithSeed(seed uint64) *Bank {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rnd = mathrand.New(mathrand.NewPCG(seed, seed))
	return b
}

// Builtin returns the bank compiled into the binary.
func Builtin() (*Bank, error) {
	return Parse(builtinYAML)
}

// LoadFile reads a bank from a YAML file.
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML bank.
func Parse(data []byte) (*Bank, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	if f.DefaultTopic == "" {
		return nil, fmt.Errorf("question bank has no default_topic")
	}

	b := New(f.DefaultTopic)
	for topic, questions := range f.Topics {
		if err := b.Register(topic, questions); err != nil {
			return nil, err
		}
	}
	if _, ok := b.topics[b.defaultTopic]; !ok {
		return nil, fmt.Errorf("default topic %q has no pool", b.defaultTopic)
	}
	return b, nil
}

// Register adds a pool under topic. Every question must be playable.
func (b *Bank) Register(topic string, questions []Question) error {
	key := normalize(topic)
	if key == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("topic %q question %d: %w", key, i, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.topics[key]; exists {
		return fmt.Errorf("topic %q already registered", key)
	}
	b.topics[key] = append([]Question(nil), questions...)
	return nil
}

// Topics lists registered topics in sorted order.
func (b *Bank) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.topics))
	for k := range b.topics {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Draw returns up to n shuffled questions for topic, together with the topic
// actually used. Unknown topics resolve to the default topic.
func (b *Bank) Draw(topic string, n int) (string, []Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	resolved := normalize(topic)
	pool, ok := b.topics[resolved]
	if !ok {
		resolved = b.defaultTopic
		pool = b.topics[resolved]
	}
	if len(pool) == 0 || n <= 0 {
		return resolved, nil, fmt.Errorf("topic %q: %w", resolved, ErrEmptyPool)
	}

	drawn := make([]Question, len(pool))
	for i, q := range pool {
		q.Options = append([]string(nil), q.Options...)
		drawn[i] = q
	}
	b.rnd.Shuffle(len(drawn), func(i, j int) { drawn[i], drawn[j] = drawn[j], drawn[i] })
	if n < len(drawn) {
		drawn = drawn[:n]
	}
	return resolved, drawn, nil
}

func normalize(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}
