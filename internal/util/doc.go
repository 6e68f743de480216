// Package util holds small string and URL helpers shared by the server,
// storage and HTTP layers.
package util
