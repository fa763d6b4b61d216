// Package directory implements the HTTP request/response client for login,
// roster and message history. Every failure, transport or status, wraps
// domain.ErrDirectoryUnavailable so callers can treat the directory as one
// collaborator that is either there or not.
package directory
