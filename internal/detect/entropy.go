package detect

import "math"

// ShannonEntropy measures the randomness of a string in bits per character.
// Ordinary filenames land around 3.0 to 4.0; the randomized names ransomware
// produces spike past 4.0.
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	charCounts := make(map[rune]int)
	total := 0
	for _, char := range s {
		charCounts[char]++
		total++
	}

	var entropy float64
	for _, count := range charCounts {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
