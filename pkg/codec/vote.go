package codec

// Outcome qualifies a decoded word.
type Outcome uint8

const (
	// Majority means more than half of the samples were this value.
	Majority Outcome = iota
	// Plurality means the value recurred more than any other, without a
	// majority.
	Plurality
	// Ambiguous means no value recurred, or two values recurred equally.
	// The returned value is then the earliest best candidate and should not
	// be trusted.
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Majority:
		return "majority"
	case Plurality:
		return "plurality"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Vote is the result of a word-level vote.
type Vote struct {
	Value   uint64
	Outcome Outcome
	// Support is the number of samples equal to Value, itself included.
	Support int
	Samples int
}

// MostFrequent returns the most frequent complete value in samples.
//
// A candidate's match count is the number of other samples equal to it. The
// first candidate whose count exceeds half the samples wins immediately;
// otherwise the highest count wins and ties go to the earliest index. With
// every sample distinct that is samples[0], reported as Ambiguous.
func MostFrequent(samples []uint64) Vote {
	n := len(samples)
	if n == 0 {
		return Vote{Outcome: Ambiguous}
	}

	best, bestCount := 0, 0
	for i := 0; i < n; i++ {
		count := 0
		for j := 0; j < n; j++ {
			if j != i && samples[j] == samples[i] {
				count++
			}
		}
		if count > n/2 {
			best, bestCount = i, count
			break
		}
		if count > bestCount {
			best, bestCount = i, count
		}
	}

	v := Vote{
		Value:   samples[best],
		Support: bestCount + 1,
		Samples: n,
	}
	switch {
	case v.Support > n/2:
		v.Outcome = Majority
	case bestCount == 0 || tied(samples, samples[best], bestCount):
		v.Outcome = Ambiguous
	default:
		v.Outcome = Plurality
	}
	return v
}

// tied reports whether a value other than winner has the same match count.
func tied(samples []uint64, winner uint64, count int) bool {
	for i, s := range samples {
		if s == winner {
			continue
		}
		c := 0
		for j, o := range samples {
			if j != i && o == s {
				c++
			}
		}
		if c == count {
			return true
		}
	}
	return false
}
