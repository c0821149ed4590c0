package utils

import "errors"

// Common application errors used across services.
var (
	ErrInvalidArgument   = errors.New("INVALID_ARGUMENT")
	ErrUnknownSite       = errors.New("UNKNOWN_SITE")
	ErrNoCrawlerForURL   = errors.New("NO_CRAWLER_FOR_URL")
	ErrMalformedListing  = errors.New("MALFORMED_LISTING")
	ErrAllCrawlersFailed = errors.New("ALL_CRAWLERS_FAILED")
	ErrJobCancelled      = errors.New("CANCELLED")
	ErrJobNotFound       = errors.New("JOB_NOT_FOUND")
	ErrSnapshotNotFound  = errors.New("SNAPSHOT_NOT_FOUND")
)
