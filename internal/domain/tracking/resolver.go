package tracking

// ParticipantSource exposes the ordered participant identities of one match.
type ParticipantSource interface {
	ParticipantPUUIDs() []string
}

// ResolveIndices maps every known identity found in the match to its participant index.
// The result is specific to the given match and is never empty-nil.
func ResolveIndices(match ParticipantSource, known IdentitySet) map[string]int {
	indices := make(map[string]int)
	if match == nil || len(known) == 0 {
		return indices
	}
	for i, puuid := range match.ParticipantPUUIDs() {
		if known.Contains(puuid) {
			indices[puuid] = i
		}
	}
	return indices
}
