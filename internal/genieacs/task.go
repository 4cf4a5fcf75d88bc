package genieacs

import (
	"encoding/json"
	"time"
)

// Task names understood by the management platform.
const (
	TaskSetParameterValues = "setParameterValues"
	TaskRefreshObject      = "refreshObject"
	TaskReboot             = "reboot"
)

// Parameter types used in setParameterValues.
const (
	TypeString  = "xsd:string"
	TypeBoolean = "xsd:boolean"
)

// ParameterValue is one [path, value, type] triple.
type ParameterValue struct {
	Path  string
	Value string
	Type  string
}

// MarshalJSON encodes v as a three-element array.
func (v ParameterValue) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{v.Path, v.Value, v.Type})
}

// Task is a device task body.
type Task struct {
	Name            string           `json:"name"`
	ObjectName      *string          `json:"objectName,omitempty"`
	ParameterValues []ParameterValue `json:"parameterValues,omitempty"`
}

// TaskOptions control how the platform processes a posted task.
type TaskOptions struct {
	// ConnectionRequest asks the platform to contact the device immediately.
	ConnectionRequest bool
	// Timeout is how long the platform waits for the device; zero omits it.
	Timeout time.Duration
}

// SetParameterValues builds a setParameterValues task.
func SetParameterValues(values ...ParameterValue) Task {
	return Task{Name: TaskSetParameterValues, ParameterValues: values}
}

// RefreshObject builds a refreshObject task. An empty name refreshes the whole tree.
func RefreshObject(name string) Task {
	return Task{Name: TaskRefreshObject, ObjectName: &name}
}

// Reboot builds a reboot task.
func Reboot() Task {
	return Task{Name: TaskReboot}
}
