// Package language provides the static language registry.
//
// The registry maps a language identifier to its container image,
// default run command, main file name and package-manager operation
// table. Extending the runtime to a new language is adding one table
// row, either in code, in the application configuration, or in a YAML
// language file merged with LoadFile. No other component changes.
package language
