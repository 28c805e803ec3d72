package errors

import "fmt"

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Path string
	Err  error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Credential store errors

type ErrCredentialsNotFound struct {
	Path string
}

func (e *ErrCredentialsNotFound) Error() string {
	return fmt.Sprintf("credentials file not found: %s", e.Path)
}

type ErrCredentialsParse struct {
	Path string
	Err  error
}

func (e *ErrCredentialsParse) Error() string {
	return fmt.Sprintf("failed to parse credentials file %s: %v", e.Path, e.Err)
}

func (e *ErrCredentialsParse) Unwrap() error {
	return e.Err
}

type ErrCredentialsValidation struct {
	Path string
	Err  error
}

func (e *ErrCredentialsValidation) Error() string {
	return fmt.Sprintf("credentials file %s failed validation: %v", e.Path, e.Err)
}

func (e *ErrCredentialsValidation) Unwrap() error {
	return e.Err
}

// Token errors

type ErrTokenDecode struct {
	Reason string
}

func (e *ErrTokenDecode) Error() string {
	return fmt.Sprintf("failed to decode token claims: %s", e.Reason)
}

// Network and provider errors

type ErrNetwork struct {
	Operation string
	Err       error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrAuth is non-retryable: the provider rejected the identity material
// itself (bad license tier, revoked token), not the transport.
type ErrAuth struct {
	Account string
	Reason  string
}

func (e *ErrAuth) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("authorization failed for account %s: %s", e.Account, e.Reason)
	}
	return fmt.Sprintf("authorization failed: %s", e.Reason)
}

// Persistence errors

type ErrPersistence struct {
	Path string
	Err  error
}

func (e *ErrPersistence) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *ErrPersistence) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// History store errors

type ErrHistoryOpen struct {
	Path string
	Err  error
}

func (e *ErrHistoryOpen) Error() string {
	return fmt.Sprintf("failed to open history database %s: %v", e.Path, e.Err)
}

func (e *ErrHistoryOpen) Unwrap() error {
	return e.Err
}

type ErrHistoryQuery struct {
	Operation string
	Err       error
}

func (e *ErrHistoryQuery) Error() string {
	return fmt.Sprintf("history query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrHistoryQuery) Unwrap() error {
	return e.Err
}

// Account errors

type ErrAccountNotFound struct {
	Name string
}

func (e *ErrAccountNotFound) Error() string {
	return fmt.Sprintf("account not found: %s", e.Name)
}
