// Command orcd supervises a fleet of Claude agent processes, each hosted in
// its own tmux pane, mediating JSON-RPC messaging between them.
package main

import "github.com/nextlevelbuilder/orcd/cmd"

func main() {
	cmd.Execute()
}
