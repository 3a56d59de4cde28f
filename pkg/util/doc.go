// Package util provides small generic data structures shared across the
// dispatch engine
package util
