// Package security seals persisted sessions at rest.
package security
