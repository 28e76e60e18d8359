package mimicry

import "time"

const (
	maxReadWait     = 5 * time.Second
	fragmentPerChar = 60 * time.Millisecond
	maxFragmentType = 4 * time.Second
)

// Pacing spreads delivery of one reply over time
type Pacing struct {
	rnd Random
}

func NewPacing(r Random) *Pacing {
	if r == nil {
		r = globalRand{}
	}
	return &Pacing{rnd: r}
}

// ReadWait is the pause before the message is opened and answered
func (p *Pacing) ReadWait(delay time.Duration) time.Duration {
	return min(delay*3/10, maxReadWait)
}

// FragmentTyping is how long to show "typing" before one fragment
func (p *Pacing) FragmentTyping(fragment string) time.Duration {
	return min(time.Duration(len([]rune(fragment)))*fragmentPerChar, maxFragmentType)
}

// Gap is the pause between two fragments, 1 to 3 seconds
func (p *Pacing) Gap() time.Duration {
	return time.Second + time.Duration(p.rnd.Float64()*float64(2*time.Second))
}
