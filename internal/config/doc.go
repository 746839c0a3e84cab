// Package config loads the batchrun job configuration from defaults, an
// optional config file and BATCHRUN_* environment variables, and validates
// it before any connection is made.
package config
