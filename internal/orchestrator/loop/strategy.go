package loop

// DefaultStrategy keeps going while the model asks for tools and the
// iteration budget lasts.
type DefaultStrategy struct{}

// ShouldContinue determines if the loop should continue after an iteration.
func (DefaultStrategy) ShouldContinue(state State, outcome *IterationOutcome) bool {
	if outcome == nil || outcome.Result != Continue {
		return false
	}
	return !state.HasReachedLimit()
}

var _ Strategy = DefaultStrategy{}
