// Package logging provides opt-in file-based structured logging with
// rotation for the crawler daemon. When --debug is set, comprehensive
// logs are written to ~/.localsearchd/logs/ for troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr
// only.
package logging
