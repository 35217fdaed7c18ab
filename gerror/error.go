package gerror

import "errors"

var (
	// ErrStorageNotFound is used when the object is not found in the storage
	ErrStorageNotFound = errors.New("Not found in the Storage")

	// ErrStorageNotRegister is used when the configured database kind has
	// no storage implementation
	ErrStorageNotRegister = errors.New("Not registered storage")

	// ErrStorageCorrupted is used when a stored row cannot be decoded back
	// into its in-memory shape. The affected key is skipped, never the process.
	ErrStorageCorrupted = errors.New("Stored record is corrupted")

	// ErrRPCUnavailable is used when a chain endpoint cannot be reached or
	// times out. It carries no verdict about the operation itself.
	ErrRPCUnavailable = errors.New("RPC endpoint unavailable")

	// ErrKeyUnavailable is used when the relayer key material for a
	// destination has not been provisioned yet
	ErrKeyUnavailable = errors.New("Relayer key unavailable")

	// ErrTerminalRecord is used when trying to transition a relay record
	// that already reached Relayed or Failed
	ErrTerminalRecord = errors.New("Relay record is terminal")

	// ErrAlreadyProcessed is used when the destination chain reports the
	// deposit nonce as already paid out
	ErrAlreadyProcessed = errors.New("Deposit already paid out on destination")
)
