package decimate

import "github.com/dls-controls/fa-archiver/frame"

// comb is one comb-stage delay line of a cascaded integrator-comb filter,
// operating on both axes of a frame together since x and y decimate in
// lockstep (spec §2 item 5).
type comb struct {
	delay            int
	historyX, historyY []int64
	pos              int
}

func newComb(delay int) *comb {
	if delay < 1 {
		delay = 1
	}
	return &comb{delay: delay, historyX: make([]int64, delay), historyY: make([]int64, delay)}
}

func (c *comb) step(x, y int64) (int64, int64) {
	oldX, oldY := c.historyX[c.pos], c.historyY[c.pos]
	c.historyX[c.pos], c.historyY[c.pos] = x, y
	c.pos = (c.pos + 1) % c.delay
	return x - oldX, y - oldY
}

// integrator is one running-sum stage.
type integrator struct {
	x, y int64
}

func (s *integrator) step(x, y int64) (int64, int64) {
	s.x += x
	s.y += y
	return s.x, s.y
}

// CIC is a cascaded integrator-comb decimation filter of order
// len(history_length): one integrator stage per entry before the rate
// change, one comb stage (with that entry's delay) after it, per the
// classic CIC structure. Order and per-stage comb delay come from the
// decimator's own config file (spec §6, "history_length[]").
type CIC struct {
	factor      int
	integrators []*integrator
	combs       []*comb
	counter     int
}

// NewCIC builds a CIC filter decimating by factor with one integrator/comb
// pair per entry in historyLength.
func NewCIC(factor int, historyLength []int) *CIC {
	c := &CIC{factor: factor}
	for _, h := range historyLength {
		c.integrators = append(c.integrators, &integrator{})
		c.combs = append(c.combs, newComb(h))
	}
	if len(c.integrators) == 0 {
		c.integrators = []*integrator{{}}
		c.combs = []*comb{newComb(1)}
	}
	return c
}

// Add feeds one FA-rate frame into the filter. It returns a decimated
// frame and true once every factor input frames.
func (c *CIC) Add(f frame.Frame) (frame.Frame, bool) {
	x, y := int64(f.X), int64(f.Y)
	for _, s := range c.integrators {
		x, y = s.step(x, y)
	}

	c.counter++
	if c.counter%c.factor != 0 {
		return frame.Frame{}, false
	}

	// Normalise by the CIC's overall gain (factor^order) after the comb
	// stages so the compensation FIR sees unit-scale input.
	gain := int64(1)
	for range c.integrators {
		gain *= int64(c.factor)
	}
	if gain == 0 {
		gain = 1
	}
	for _, s := range c.combs {
		x, y = s.step(x, y)
	}

	return frame.Frame{X: int32(x / gain), Y: int32(y / gain)}, true
}
