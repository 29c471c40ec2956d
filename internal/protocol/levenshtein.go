package protocol

import "strings"

// closestMenuItem returns the menu item nearest to name by edit distance,
// for the diagnostic suggestion on rejected order items. Empty when the menu
// is empty or nothing comes within half the name's length.
func closestMenuItem(name string, menu map[string]float64) string {
	best := ""
	bestDist := len(name)/2 + 1
	for item := range menu {
		d := editDistance(strings.ToLower(name), strings.ToLower(item))
		if d < bestDist || (d == bestDist && best != "" && item < best) {
			best = item
			bestDist = d
		}
	}
	return best
}

// editDistance is the Levenshtein distance between two strings, computed
// over runes with a rolling single-row table.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur := make([]int, len(rb)+1)
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
