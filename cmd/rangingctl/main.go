// rangingctl is the CLI client for rangingd's read-only JSON
// introspection API.
package main

import "github.com/multirange/core/cmd/rangingctl/commands"

func main() {
	commands.Execute()
}
