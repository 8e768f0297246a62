// Package redis opens the optional redis connection used by the redis
// checkpoint backend.
package redis
