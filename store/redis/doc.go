// Package redisstore persists encoded sessions in Redis hashes.
package redisstore
