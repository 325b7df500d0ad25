// Package mcpserver exposes the execution runtime over the Model
// Context Protocol.
//
// The server registers execute_code, install_packages and list_packages
// tools backed by the execution runtime and package manager, and serves
// them over stdio or streamable HTTP depending on configuration.
package mcpserver
