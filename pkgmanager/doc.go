// Package pkgmanager installs, lists and removes language dependencies
// inside a project's workspace.
//
// Every operation is a synthetic execution through the runtime: empty
// code, a shell command composed from the language registry's
// package-operation table. Package operations therefore inherit the
// sandbox's resource caps while carrying their own network policy so
// they can reach a package index.
package pkgmanager
