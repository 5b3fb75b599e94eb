package rag

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrNoExtractableText       = errors.New("no extractable text")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrUnauthorized            = errors.New("tenant context missing")
	ErrProvisioning            = errors.New("index provisioning failed")
	// ErrTruncated is returned by generators whose model stopped at its
	// token limit. A truncated answer never completes.
	ErrTruncated               = errors.New("response was truncated by the model")
)

// IsRetryable reports whether err came from an unavailable or failing
// collaborator and the request may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCollaboratorUnavailable)
}

// PartialIndexError is returned when a batch upsert fails after zero or more
// batches were written. The namespace is incomplete and must be re-indexed.
type PartialIndexError struct {
	Tenant    string
	Namespace string
	Indexed   int
	Total     int
	Err       error
}

func (e *PartialIndexError) Error() string {
	return fmt.Sprintf("namespace %s/%s partially indexed (%d of %d records): %v",
		e.Tenant, e.Namespace, e.Indexed, e.Total, e.Err)
}

func (e *PartialIndexError) Unwrap() []error {
	return []error{ErrCollaboratorUnavailable, e.Err}
}

var tenantPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// ValidateTenant checks the tenant id. An empty tenant means the caller has
// no tenant context at all.
func ValidateTenant(tenant string) error {
	if tenant == "" {
		return ErrUnauthorized
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("%w: tenant %q must match %s", ErrInvalidInput, tenant, tenantPattern)
	}
	return nil
}

// ValidateNamespace rejects empty namespaces and namespaces with path or
// control characters.
func ValidateNamespace(namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return fmt.Errorf("%w: namespace is required", ErrInvalidInput)
	}
	if len(namespace) > 255 || strings.ContainsAny(namespace, "/\\\x00\n\r") {
		return fmt.Errorf("%w: invalid namespace %q", ErrInvalidInput, namespace)
	}
	return nil
}
