// Package env reads process settings needed before config.Load runs.
package env

import "os"

// Get returns the value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
