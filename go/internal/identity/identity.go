// Package identity generates join codes, fallback display names and
// per-join session tokens.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"regexp"
	"sync"
)

const (
	minCode = 1000
	maxCode = 9999
)

var codePattern = regexp.MustCompile(`^[0-9]{4}$`)

var (
	adjectives = []string{"Brave", "Bright", "Clever", "Cool", "Lucky", "Quick", "Swift", "Wild"}
	nouns      = []string{"Bear", "Eagle", "Fox", "Hawk", "Lion", "Otter", "Shark", "Tiger"}
)

// Generator produces codes and names. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *mathrand.Rand
}

// NewGenerator returns a generator seeded from the runtime source.
func NewGenerator() *Generator {
	return &Generator{rnd: mathrand.New(mathrand.NewPCG(mathrand.Uint64(), mathrand.Uint64()))}
}

// NewSeededGenerator returns a deterministic generator for tests.
func NewSeededGenerator(seed uint64) *Generator {
	return &Generator{rnd: mathrand.New(mathrand.NewPCG(seed, seed))}
}

// Code returns a 4-digit join code in 1000..9999.
func (g *Generator) Code() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("%04d", minCode+g.rnd.IntN(maxCode-minCode+1))
}

// Username returns a fallback display name such as "SwiftFox4821".
// The numeric suffix is always four digits.
func (g *Generator) Username() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	adj := adjectives[g.rnd.IntN(len(adjectives))]
	noun := nouns[g.rnd.IntN(len(nouns))]
	return fmt.Sprintf("%s%s%d", adj, noun, 1000+g.rnd.IntN(9000))
}

// ValidCode reports whether code has the 4-digit join code shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// NewToken returns a random session token and the hash to persist.
func NewToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read random token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken returns the hex SHA-256 of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenMatches compares token against a stored hash in constant time.
func TokenMatches(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
