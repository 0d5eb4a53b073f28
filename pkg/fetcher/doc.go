// Package fetcher orchestrates checkpoint downloads.
//
// A fetch run for a variant takes the per-variant lock, reconciles the
// session ledger against the remote repository, and hands the files that
// still need bytes to the download worker pool. Files already on disk are
// skipped, partial files whose remote etag still matches are resumed, and
// anything else restarts from zero. Progress is reported either through the
// minimal console display or the full terminal UI.
package fetcher
