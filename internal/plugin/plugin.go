// Package plugin defines the Plugin Interface the engine dispatches
// against (spec §6.1). Plugins are registry-by-id values; no
// inheritance is required.
package plugin

import "context"

// CredentialRequirement is one entry of a plugin's declared credential
// needs.
type CredentialRequirement struct {
	ID       string
	Alias    string
	Required bool
}

// Metadata describes a plugin for pre-dispatch credential checks and
// discovery.
type Metadata struct {
	ID                     string
	Name                   string
	Version                string
	Tags                   []string
	CredentialRequirements []CredentialRequirement
}

// PortSchema documents one input or output port.
type PortSchema struct {
	Label  string
	Schema map[string]any // JSON-schema-shaped description
}

// Schemas is the result of DefineSchemas: the plugin's input and output
// port contracts, and an optional config schema.
type Schemas struct {
	Inputs  map[string]PortSchema
	Outputs map[string]PortSchema
	Config  map[string]any
}

// CredentialRecord is what the Credential Loader hands back to a
// plugin: an immutable snapshot valid for one call.
type CredentialRecord map[string]any

// ExecutionContext is the read-only context passed alongside inputs and
// resolved parameters (spec §6.1, §4.6 dispatch contract step 4).
type ExecutionContext struct {
	UserID      string
	RoutineID   string
	ExecutionID string
	NodeID      string
	Credentials map[string]CredentialRecord
	TriggerData any
}

// Output is a plugin's result: a record of named ports, each holding a
// single JSON-serializable value. The reserved "branch" key selects a
// branch for conditional routing (spec §6.1); a {"data":...,"signal":...}
// wrapper is also recognized and normalized by the dispatch layer.
type Output map[string]any

// Plugin is the executable unit a node dispatches to.
type Plugin interface {
	ID() string
	Metadata() Metadata
	DefineSchemas() Schemas
	Execute(ctx context.Context, inputs map[string]any, config map[string]any, execCtx ExecutionContext, nodeState any) (Output, error)
}
