package support

import "errors"

var (
	ErrInvalidParameter   = errors.New("support: invalid parameter")
	ErrCapacityExceeded   = errors.New("support: pool derived unit capacity exceeded")
	ErrEngineDisabled     = errors.New("support: engine disabled")
	ErrEngineNotDisabled  = errors.New("support: engine must be disabled first")
	ErrUnauthorized       = errors.New("support: unauthorized")
	ErrActiveStakesRemain = errors.New("support: active stakes remain")
	ErrMigrationInvariant = errors.New("support: migration invariant violation")

	ErrPoolNotFound        = errors.New("support: pool not found")
	ErrStakeNotFound       = errors.New("support: stake not found")
	ErrInsufficientStake   = errors.New("support: insufficient derived units in stake")
	ErrEngineFrozen        = errors.New("support: engine frozen")
	ErrEngineRetired       = errors.New("support: engine retired")
	ErrInvalidTransition   = errors.New("support: invalid lifecycle transition")
	ErrAlreadyRecovered    = errors.New("support: unallocated budget already recovered")
	ErrAlreadyFunded       = errors.New("support: reward reserve already funded")
	ErrNotFunded           = errors.New("support: reward reserve not funded")
	ErrUnsupportedSnapshot = errors.New("support: unsupported snapshot version")
	ErrSnapshotChecksum    = errors.New("support: snapshot checksum mismatch")
)
