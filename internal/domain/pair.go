package domain

// CanonicalPair orders two user ids so the lexicographically lower id comes
// first. Every conversation lookup and insert goes through this ordering,
// which is the tie-break that keeps one row per unordered pair.
func CanonicalPair(a, b string) (user1, user2 string) {
	if b < a {
		return b, a
	}
	return a, b
}
