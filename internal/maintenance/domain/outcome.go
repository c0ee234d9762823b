package maintenance

// Outcome is the result of evaluating one configuration during a sweep.
type Outcome string

const (
	OutcomeNotTriggered     Outcome = "not_triggered"
	OutcomeMissingAsset     Outcome = "missing_asset"
	OutcomeMissingChannel   Outcome = "missing_channel"
	OutcomeValueUnavailable Outcome = "value_unavailable"
	OutcomeOpenPM           Outcome = "open_pm"
	OutcomeCheckFailed      Outcome = "check_failed"
	OutcomeCreateFailed     Outcome = "create_failed"
	OutcomeCreated          Outcome = "created"
	OutcomeAdvanceFailed    Outcome = "advance_failed"
)

// Failed reports whether the outcome is a workflow failure left for the next sweep.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeValueUnavailable, OutcomeCheckFailed, OutcomeCreateFailed, OutcomeAdvanceFailed:
		return true
	default:
		return false
	}
}
