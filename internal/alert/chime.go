package alert

import (
	"fmt"
	"io"
	"time"
)

// Tone is one note of the alert chime.
type Tone struct {
	Frequency float64       // Hz
	Offset    time.Duration // start relative to the first tone
	Duration  time.Duration
}

// AscendingChime is the three-note C5-E5-G5 cue.
var AscendingChime = []Tone{
	{Frequency: 523.25, Offset: 0, Duration: 150 * time.Millisecond},
	{Frequency: 659.25, Offset: 150 * time.Millisecond, Duration: 150 * time.Millisecond},
	{Frequency: 783.99, Offset: 300 * time.Millisecond, Duration: 300 * time.Millisecond},
}

// Bell renders a chime on a terminal by ringing BEL once per tone.
// Terminals have no pitch control, so only the rhythm survives.
type Bell struct {
	Out   io.Writer
	Tones []Tone

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewBell returns a Bell that plays AscendingChime on out.
func NewBell(out io.Writer) *Bell {
	return &Bell{Out: out, Tones: AscendingChime, sleep: time.Sleep}
}

// Notify rings the bell for each tone, waiting out each tone's offset.
func (b *Bell) Notify() error {
	if b.Out == nil {
		return fmt.Errorf("bell: %w", ErrNoOutput)
	}
	sleep := b.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var elapsed time.Duration
	for _, tone := range b.Tones {
		if wait := tone.Offset - elapsed; wait > 0 {
			sleep(wait)
			elapsed += wait
		}
		if _, err := io.WriteString(b.Out, "\a"); err != nil {
			return fmt.Errorf("bell: %w", err)
		}
	}
	return nil
}
