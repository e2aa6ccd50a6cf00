package execution

import "strings"

const maxProgressDots = 3

// progress reports that a command is still running, cycling through an
// increasing number of dots so that the user can tell that polling is
// making progress.
type progress struct {
	report func(string)
	dots   int
}

func (p *progress) tick() {
	if p.report == nil {
		return
	}
	p.dots = p.dots%maxProgressDots + 1
	p.report("Running" + strings.Repeat(".", p.dots))
}
