package media

import "fmt"

// DownloadFailedError wraps an upstream fetch failure.
type DownloadFailedError struct {
	URL   string
	Cause error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download failed for %s: %v", e.URL, e.Cause)
}

func (e *DownloadFailedError) Unwrap() error { return e.Cause }

// UnsupportedPlatformError marks a host outside the supported platform set.
type UnsupportedPlatformError struct {
	URL string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform for %s: only YouTube sources are supported", e.URL)
}

// InvalidMediaReferenceError marks a reference that is not a valid URL.
type InvalidMediaReferenceError struct {
	Reference string
}

func (e *InvalidMediaReferenceError) Error() string {
	return fmt.Sprintf("invalid media reference %q", e.Reference)
}
