// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

// LogLevels lists every accepted level, lowest first.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

// HTTPMethods lists the methods a backend route may use.
var HTTPMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

// HTTPSchemes are the schemes accepted for backend URLs.
var HTTPSchemes = []string{"http", "https"}
