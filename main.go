package main

import "github.com/pantheon-systems/worf/cmd"

func main() {
	cmd.Execute()
}
