package maintenance

import "strings"

// StatusAborted is the only PM status that does not block a new PM.
const StatusAborted = "aborted"

// AdvanceStatus is the status a freshly created PM is advanced to.
const AdvanceStatus = "acceptance"

// TriggerConfig is a registry preventive-maintenance configuration reduced to
// what the trigger check needs.
type TriggerConfig struct {
	ID          string
	AssetID     string
	Description string
	Trigger     Trigger
}

// TriggerConfigDetail is the full configuration card used to create a PM.
// Reference attributes are kept as the registry returned them.
type TriggerConfigDetail struct {
	ID                string
	Description       string
	Site              any
	Action            any
	CISubset          any
	Team              any
	Priority          any
	EstimatedDuration any
	Notes             string
	ActivityType      any
}

// PMInstance is a preventive-maintenance work order.
type PMInstance struct {
	ID       string
	ConfigID string
	Status   string
}

// Open reports whether the instance blocks the creation of another PM for the
// same configuration.
func (p PMInstance) Open() bool {
	return strings.ToLower(p.Status) != StatusAborted
}

// PMActivity is a pending workflow activity of a PM instance.
type PMActivity struct {
	ID          string
	Description string
}

// AdvanceRequest moves a PM instance past its current activity.
type AdvanceRequest struct {
	ActivityID    string
	Status        string
	ExecutionDate string
}
