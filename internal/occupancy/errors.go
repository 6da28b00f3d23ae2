package occupancy

import "errors"

var (
	// ErrMissingTenant: there is no scope to project for. Returned instead
	// of an empty slice, which would read as "every table is free".
	ErrMissingTenant = errors.New("occupancy: missing tenant")

	// ErrSnapshotUnavailable is returned only while no snapshot has ever
	// been computed for the tenant and the first computation failed.
	ErrSnapshotUnavailable = errors.New("occupancy: snapshot unavailable")

	// ErrEngineClosed is returned by every call made after Engine.Close.
	ErrEngineClosed = errors.New("occupancy: engine closed")
)
