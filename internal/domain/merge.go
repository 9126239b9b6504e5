package domain

import "time"

// Field merge policies. Every mutation of a Person goes through one of these
// three functions so that update logic stays uniform instead of being
// assembled per call site.

// LongerText keeps whichever of the two values is non-empty and longer.
// Ties keep the current value.
func LongerText(current, incoming string) string {
	if len(incoming) > len(current) {
		return incoming
	}
	return current
}

// OverwriteIfPresent replaces current with incoming only when incoming is
// provided.
func OverwriteIfPresent(current, incoming string) string {
	if incoming != "" {
		return incoming
	}
	return current
}

// FillIfMissing keeps current when it is provided, otherwise takes incoming.
func FillIfMissing(current, incoming string) string {
	if current != "" {
		return current
	}
	return incoming
}

// MergeOnResolve folds an incoming candidate into an existing matched record
// and returns the fully-formed updated record. Affiliation and bio keep the
// longer value, title is overwritten only when the candidate provides one,
// and the primary affiliation is filled only when missing.
func MergeOnResolve(existing Person, c Candidate, now time.Time) Person {
	existing.Affiliation = LongerText(existing.Affiliation, c.Affiliation)
	existing.Bio = LongerText(existing.Bio, c.Bio)
	existing.Title = OverwriteIfPresent(existing.Title, c.Title)
	existing.PrimaryAffiliation = FillIfMissing(existing.PrimaryAffiliation, c.PrimaryAffiliation)
	existing.LastUpdated = now
	return existing
}

// MergeGroup folds every loser of a duplicate group into the primary record
// and returns the fully-formed updated primary. Title, affiliation and bio
// keep the longest value seen across the whole group; the primary affiliation
// is filled from a loser only when the primary's is missing.
func MergeGroup(primary Person, losers []Person, now time.Time) Person {
	for _, loser := range losers {
		primary.Title = LongerText(primary.Title, loser.Title)
		primary.Affiliation = LongerText(primary.Affiliation, loser.Affiliation)
		primary.Bio = LongerText(primary.Bio, loser.Bio)
		primary.PrimaryAffiliation = FillIfMissing(primary.PrimaryAffiliation, loser.PrimaryAffiliation)
	}
	primary.LastUpdated = now
	return primary
}

// CompletenessScore is a heuristic proxy for how much information a record
// holds, used to pick the survivor within one duplicate group. Presence flags
// are worth one point while affiliation and bio contribute their raw string
// lengths, so scores are only comparable inside a single group.
func CompletenessScore(p Person) int {
	score := 0
	if p.Title != "" {
		score++
	}
	score += len(p.Affiliation)
	if p.PrimaryAffiliation != "" {
		score++
	}
	score += len(p.Bio)
	return score
}
