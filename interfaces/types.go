package interfaces

import (
	"errors"
	"fmt"
	"regexp"
)

// UnitKey is the stable identifier of one publisher unit. All addressing of
// live resources is keyed by it; it is never derived from a positional index.
type UnitKey string

var unitKeyRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Valid reports whether the key is usable for resource naming and secret paths.
func (k UnitKey) Valid() error {
	if len(k) == 0 || len(k) > 64 {
		return errors.New("unit key must be 1-64 characters")
	}
	if !unitKeyRe.MatchString(string(k)) {
		return fmt.Errorf("unit key %q must match %s", k, unitKeyRe.String())
	}
	return nil
}

func (k UnitKey) String() string { return string(k) }

// PublisherUnit is one logical publisher to be deployed.
type PublisherUnit struct {
	// Key is the stable unique identifier used for all addressing.
	Key UnitKey `json:"key"`

	// DisplayName is sent to the tenant and used in resource naming.
	DisplayName string `json:"display_name"`

	// Ordinal is the 0-based creation order. It is used only for deterministic
	// placement across network segments, never for identity.
	Ordinal int `json:"ordinal"`
}

// DesiredUnits builds a desired-unit set from a base name and a count. The
// first unit uses the base name as-is, subsequent units append a sequence
// suffix. Keys equal display names, which keeps re-runs and partial
// add/remove stable under count changes.
func DesiredUnits(baseName string, count int) ([]PublisherUnit, error) {
	if count < 0 {
		return nil, errors.New("unit count must be non-negative")
	}
	units := make([]PublisherUnit, 0, count)
	for i := 0; i < count; i++ {
		name := baseName
		if i > 0 {
			name = fmt.Sprintf("%s-%d", baseName, i+1)
		}
		unit := PublisherUnit{Key: UnitKey(name), DisplayName: name, Ordinal: i}
		if err := unit.Key.Valid(); err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}

// PublisherStatus is the tenant-side publisher connection status. It is
// observed via the tenant API, never owned by the controller.
type PublisherStatus string

const (
	PublisherPending      PublisherStatus = "pending"
	PublisherConnected    PublisherStatus = "connected"
	PublisherDisconnected PublisherStatus = "disconnected"
)

// PublisherIdentity is the tenant-side registration record for one unit.
type PublisherIdentity struct {
	PublisherID string          `json:"publisher_id"`
	Name        string          `json:"name"`
	Status      PublisherStatus `json:"status"`
}

// RegistrationToken is a single-use credential binding an instance to a
// publisher identity. Once consumed it can never be reused; replacing an
// instance requires a fresh identity and token pair.
type RegistrationToken struct {
	PublisherID string `json:"publisher_id"`
	Value       string `json:"token"`
	Consumed    bool   `json:"consumed"`
}

// InstanceState is the compute provider's lifecycle state of an instance.
type InstanceState int

const (
	InstancePending InstanceState = iota
	InstanceRunning
	InstanceTerminated
)

func (s InstanceState) String() string {
	switch s {
	case InstancePending:
		return "pending"
	case InstanceRunning:
		return "running"
	case InstanceTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ManagementState tracks whether the remote-management agent on an instance
// has reported a heartbeat. It is independent of InstanceState and typically
// lags InstanceRunning by tens of seconds to minutes.
type ManagementState int

const (
	ManagementUnknown ManagementState = iota
	ManagementOnline
)

func (s ManagementState) String() string {
	if s == ManagementOnline {
		return "online"
	}
	return "unknown"
}

// ComputeInstance is one provisioned virtual machine.
type ComputeInstance struct {
	InstanceID      string          `json:"instance_id"`
	State           InstanceState   `json:"state"`
	ManagementState ManagementState `json:"management_state"`
}

// ExecutionStatus is the state of one registration attempt on an instance.
// It is terminal once Success, Failed, Cancelled or TimedOut.
type ExecutionStatus int

const (
	ExecutionInProgress ExecutionStatus = iota
	ExecutionSuccess
	ExecutionFailed
	ExecutionCancelled
	ExecutionTimedOut
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionInProgress:
		return "in-progress"
	case ExecutionSuccess:
		return "success"
	case ExecutionFailed:
		return "failed"
	case ExecutionCancelled:
		return "cancelled"
	case ExecutionTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can no longer change.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionInProgress
}

// ExecutionResult carries the terminal status of a registration attempt along
// with the remote command's captured output for diagnosis.
type ExecutionResult struct {
	Status ExecutionStatus `json:"status"`
	Stdout string          `json:"stdout,omitempty"`
	Stderr string          `json:"stderr,omitempty"`
}

// SecretPath returns the secret store path for a unit's registration token,
// namespaced per display name so access can be scoped per unit.
func SecretPath(app, displayName string) string {
	return fmt.Sprintf("/%s/publishers/%s/registration-token", app, displayName)
}

// UnitRecord is the controller's persisted record of one live unit, tying the
// unit key to the tenant identity, instance and secret path it owns.
type UnitRecord struct {
	Key         UnitKey `json:"key"`
	DisplayName string  `json:"display_name"`
	Ordinal     int     `json:"ordinal"`
	PublisherID string  `json:"publisher_id"`
	InstanceID  string  `json:"instance_id"`
	SecretPath  string  `json:"secret_path"`
	Registered  bool    `json:"registered"`
}
