// Package brkit provides functionality for binary research and exploitation.
//
// APIs are separated into subpackages, and documented accordingly.
//
// For scripting convenience, "OrExit" functions and methods are provided.
// Any errors encountered by these functions are treated as fatal. In such
// cases, an exit handler function is invoked.
package brkit
