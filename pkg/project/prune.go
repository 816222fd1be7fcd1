package project

// Dangling references are an expected consequence of deletion flows, so the
// read paths below filter them instead of reporting them.

// stepSet returns the ids of all steps.
func (p *Project) stepSet() map[string]bool {
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		ids[s.ID] = true
	}
	return ids
}

// ValidConnections returns the connections whose source and target both
// exist, in document order.
func (p *Project) ValidConnections() []Connection {
	ids := p.stepSet()
	out := make([]Connection, 0, len(p.Connections))
	for _, c := range p.Connections {
		if ids[c.Source] && ids[c.Target] {
			out = append(out, c)
		}
	}
	return out
}

// ValidGuide returns the guide entries whose step still exists.
func (p *Project) ValidGuide() []GuideStep {
	ids := p.stepSet()
	out := make([]GuideStep, 0, len(p.Guide))
	for _, g := range p.Guide {
		if ids[g.StepID] {
			out = append(out, g)
		}
	}
	return out
}

// Sequence returns the step ids in playback order: the pruned guide when
// one has been curated, all steps in array order otherwise.
func (p *Project) Sequence() []string {
	guide := p.ValidGuide()
	if len(guide) > 0 {
		out := make([]string, len(guide))
		for i, g := range guide {
			out[i] = g.StepID
		}
		return out
	}
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.ID
	}
	return out
}

// Next returns the step after current in playback order. An empty or
// unknown current starts at the first step.
func (p *Project) Next(current string) (string, bool) {
	seq := p.Sequence()
	if len(seq) == 0 {
		return "", false
	}
	for i, id := range seq {
		if id == current {
			if i+1 < len(seq) {
				return seq[i+1], true
			}
			return "", false
		}
	}
	return seq[0], true
}

// Prev returns the step before current in playback order.
func (p *Project) Prev(current string) (string, bool) {
	seq := p.Sequence()
	for i, id := range seq {
		if id == current && i > 0 {
			return seq[i-1], true
		}
	}
	return "", false
}
