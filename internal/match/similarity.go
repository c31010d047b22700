package match

// Ratio computes the Ratcliff/Obershelp similarity of two strings in
// [0, 1]: twice the number of matching characters over the total length,
// where matches are found by recursing around the longest common
// substring. Operates on runes so diacritics count as single characters.
// Callers are expected to normalize (trim, lowercase) beforehand.
func Ratio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingRunes(ra, rb)) / float64(total)
}

// matchingRunes sums the sizes of all matching blocks: the longest common
// block plus, recursively, the matches to its left and right.
func matchingRunes(a, b []rune) int {
	ai, bj, size := longestBlock(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingRunes(a[:ai], b[:bj]) +
		matchingRunes(a[ai+size:], b[bj+size:])
}

// longestBlock finds the longest common contiguous block of a and b.
// Ties resolve to the earliest block in a, matching the conventional
// SequenceMatcher behavior.
func longestBlock(a, b []rune) (besti, bestj, bestsize int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	// j2len[j] = length of the match ending at a[i], b[j]
	j2len := map[int]int{}
	for i, r := range a {
		newj2len := map[int]int{}
		for _, j := range b2j[r] {
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}
