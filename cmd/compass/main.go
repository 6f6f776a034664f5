// Command compass estimates context-window usage for AI coding sessions,
// discovers the active session on disk and turns notes into handoff documents.
package main

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	Execute()
}
