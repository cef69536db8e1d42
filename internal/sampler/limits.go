package sampler

// Advisory classifies a retrieved message count against the configured
// limits before any sampling happens.
type Advisory int

const (
	// CountOK means the set fits as-is.
	CountOK Advisory = iota
	// CountSuggestSampling means the set exceeds the soft limit; sampling
	// down to it gives faster, cheaper summaries.
	CountSuggestSampling
	// CountRequireSampling means the set exceeds the hard limit and must
	// be sampled.
	CountRequireSampling
)

// Limits holds the two-level size policy: Soft is the recommended working
// set, Hard the absolute maximum per request.
type Limits struct {
	Soft int
	Hard int
}

// Check returns the advisory for count and the bound to sample to. The
// bound equals count when no sampling is needed.
func (l Limits) Check(count int) (Advisory, int) {
	switch {
	case l.Hard > 0 && count > l.Hard:
		return CountRequireSampling, l.Hard
	case l.Soft > 0 && count > l.Soft:
		return CountSuggestSampling, l.Soft
	default:
		return CountOK, count
	}
}
