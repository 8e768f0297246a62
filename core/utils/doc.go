// Package utils provides loose type conversion for decoded JSON values.
//
// Source documents arrive as map[string]any, so the same field can be a
// float64, a string or a bool depending on the upstream producer. ToInt,
// ToString and ToBool accept any of those.
package utils
