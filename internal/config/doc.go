// Package config loads the per-build configuration table and the runtime
// settings.
//
// The table is a CUE document validated against the embedded #Table
// schema (schema.cue) and compiled once into an immutable *Table. A
// default table for the US retail build is embedded; other builds supply
// their own file or directory. Differing builds need a different table,
// never different code.
//
// Runtime settings (poll rate, history depth, sinks) come from FRAMEWATCH_*
// environment variables.
//
// A missing or invalid table is the only fatal error in the system and is
// reported as a *LoadError.
package config
