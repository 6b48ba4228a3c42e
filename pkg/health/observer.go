package health

// Observer is notified as a run progresses. Implementations must be safe for
// concurrent use when one executor serves several targets in parallel.
type Observer interface {
	// RuleFinished is called after each rule, in execution order.
	RuleFinished(run RunInfo, result Result)

	// RunFinished is called once with the aggregated report.
	RunFinished(report *ScoreReport)
}

// observers fans out to several observers.
type observers []Observer

// MultiObserver combines observers; nil entries are ignored.
func MultiObserver(obs ...Observer) Observer {
	var out observers
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m observers) RuleFinished(run RunInfo, result Result) {
	for _, o := range m {
		o.RuleFinished(run, result)
	}
}

func (m observers) RunFinished(report *ScoreReport) {
	for _, o := range m {
		o.RunFinished(report)
	}
}
