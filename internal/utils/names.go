package utils

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode"
)

// maxNameLen clamps display names on the way in. Long enough for
// anything a person would type, short enough for the room list.
const maxNameLen = 32

// Word lists for generating random display names
var adjectives = []string{
	"Swift", "Brave", "Clever", "Noble", "Mighty", "Silent", "Golden", "Silver",
	"Crystal", "Shadow", "Crimson", "Azure", "Cosmic", "Ancient", "Mystic", "Royal",
	"Fierce", "Gentle", "Wild", "Calm", "Bold", "Wise", "Quick", "Keen",
	"Dark", "Light", "Storm", "Frost", "Fire", "Iron", "Steel", "Stone",
}

var nouns = []string{
	"Knight", "Bishop", "Rook", "Queen", "King", "Pawn", "Gambit", "Tempo",
	"Wolf", "Bear", "Eagle", "Hawk", "Lion", "Tiger", "Falcon", "Serpent",
	"Castle", "Tower", "Crown", "Throne", "Sword", "Shield", "Arrow", "Bow",
	"Guardian", "Sentinel", "Watcher", "Keeper", "Seeker", "Rider", "Walker", "Runner",
}

// GenerateRandomDisplayName generates a random display name in format "AdjectiveNoun123"
func GenerateRandomDisplayName() string {
	adjective := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	number := rand.Intn(1000) // 0-999
	return fmt.Sprintf("%s%s%d", adjective, noun, number)
}

// SanitizeName normalizes an inbound display name: surrounding space
// trimmed, control runes dropped, clamped to 32 runes. Returns "" for
// names that sanitize away to nothing, so callers can substitute a
// generated one.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > maxNameLen {
		out = string(runes[:maxNameLen])
	}
	return out
}

// DisplayNameOrRandom sanitizes the given name and falls back to a
// generated one when nothing usable remains.
func DisplayNameOrRandom(name string) string {
	if s := SanitizeName(name); s != "" {
		return s
	}
	return GenerateRandomDisplayName()
}
