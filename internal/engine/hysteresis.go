package engine

// Key identifies one directed opportunity: buy at BuyVenue's ask, sell at
// SellVenue's bid. (p, A, B) and (p, B, A) are distinct keys.
type Key struct {
	Pair      string
	BuyVenue  string
	SellVenue string
}

type windowState struct {
	inWindow bool
	sinceMs  int64
}

// hysteresis is the two-threshold enter/exit state machine. Thresholds are
// profit fractions, not percents. States transition only when their key is
// observed in a scan; absence is not an exit.
type hysteresis struct {
	enter  float64
	exit   float64
	states map[Key]*windowState
}

func newHysteresis(enterFrac, exitFrac float64) *hysteresis {
	return &hysteresis{
		enter:  enterFrac,
		exit:   exitFrac,
		states: make(map[Key]*windowState),
	}
}

// observe applies one observation and reports whether the key is in-window
// afterwards.
func (h *hysteresis) observe(key Key, profitFrac float64, nowMs int64) bool {
	st, ok := h.states[key]
	if !ok {
		st = &windowState{}
		h.states[key] = st
	}
	if !st.inWindow {
		if profitFrac >= h.enter {
			st.inWindow = true
			st.sinceMs = nowMs
		}
	} else if profitFrac < h.exit {
		st.inWindow = false
		st.sinceMs = 0
	}
	return st.inWindow
}

// isLong reports whether the key has been continuously in-window for at
// least longMs. Any exit resets the clock.
func (h *hysteresis) isLong(key Key, nowMs, longMs int64) bool {
	st, ok := h.states[key]
	if !ok || !st.inWindow || st.sinceMs == 0 {
		return false
	}
	return nowMs-st.sinceMs >= longMs
}
