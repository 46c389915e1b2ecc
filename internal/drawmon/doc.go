// Package drawmon detects drawing activity by polling a downscaled
// composite fingerprint and debouncing changes into refresh signals.
package drawmon
