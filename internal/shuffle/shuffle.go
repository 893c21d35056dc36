// Package shuffle deterministically permutes the four answer choices of a
// question from an opaque per-assignment seed. Every process that knows the
// seed computes the identical permutation, so the shuffle itself is never
// transmitted. The first answer passed in is, by construction, the correct
// one; the seed is the only way to recover where it landed.
package shuffle

import "unicode/utf16"

// Labels in shuffled-position order.
var labels = [4]string{"A", "B", "C", "D"}

type Answer struct {
	Text          string `json:"text"`
	Label         string `json:"label"`
	OriginalIndex int    `json:"originalIndex"`
}

type Result struct {
	Answers      [4]Answer `json:"answers"`
	CorrectIndex int       `json:"correctIndex"`
	CorrectLabel string    `json:"correctLabel"`
}

// hashSeed folds the seed into a 32-bit integer using h = h*31 + codeUnit over
// UTF-16 code units. The accumulation order makes "ab" and "ba" hash apart.
// Matches already-deployed clients; do not change the arithmetic.
func hashSeed(seed string) int32 {
	var h int32
	for _, unit := range utf16.Encode([]rune(seed)) {
		h = (h << 5) - h + int32(unit)
	}
	return h
}

// newRand returns a xorshift generator seeded from the string. A zero hash
// (empty seed included) is replaced with 1 so the generator never sticks.
func newRand(seed string) func() float64 {
	x := hashSeed(seed)
	if x == 0 {
		x = 1
	}
	return func() float64 {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		return float64(uint32(x)) / 0xFFFFFFFF
	}
}

// Shuffle permutes (a, b, c, d) with a seed-keyed Fisher-Yates pass and labels
// the shuffled positions A through D. Answer a is the correct one; the result
// records where it ended up.
func Shuffle(seed, a, b, c, d string) Result {
	texts := [4]string{a, b, c, d}
	order := [4]int{0, 1, 2, 3}
	random := newRand(seed)
	for i := 3; i > 0; i-- {
		j := int(random() * float64(i+1))
		if j > i {
			j = i
		}
		order[i], order[j] = order[j], order[i]
	}

	var result Result
	for i, original := range order {
		result.Answers[i] = Answer{
			Text:          texts[original],
			Label:         labels[i],
			OriginalIndex: original,
		}
		if original == 0 {
			result.CorrectIndex = i
			result.CorrectLabel = labels[i]
		}
	}
	return result
}

// CorrectLabel reports which label the correct answer carries under the seed.
// It shuffles placeholder texts; only the permutation matters.
func CorrectLabel(seed string) string {
	return Shuffle(seed, "Correct", "Wrong1", "Wrong2", "Wrong3").CorrectLabel
}

// TranslateSelectedToOriginal maps a label a viewer selected back to the label
// of the pre-shuffle slot it came from. Used only when grading; the reported
// false means the label was not one of A-D.
func TranslateSelectedToOriginal(seed, selected string) (string, bool) {
	result := Shuffle(seed, "Correct", "Wrong1", "Wrong2", "Wrong3")
	for _, answer := range result.Answers {
		if answer.Label == selected {
			return labels[answer.OriginalIndex], true
		}
	}
	return "", false
}

// IsCorrect reports whether the selected label is the correct one under the
// seed.
func IsCorrect(seed, selected string) bool {
	return selected != "" && selected == CorrectLabel(seed)
}
