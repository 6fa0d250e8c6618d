// Package config provides configuration loading and validation for the
// Ganymede admission control core.
//
// Configuration is loaded from YAML files. Fields omitted from the file
// keep documented default values, and the final configuration is validated
// at load time. Invalid configuration (zero-length windows, thresholds out
// of range) is rejected before any component is constructed.
package config
