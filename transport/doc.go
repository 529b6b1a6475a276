// Package transport executes core transport requests over HTTP.
package transport
