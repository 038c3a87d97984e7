package main

import (
	"fmt"
	"os"

	"bsh/cmd/bsh/commands"
)

func main() {
	command := commands.NewCommand()

	if err := command.Execute(); err != nil {
		fmt.Fprintln(command.ErrOrStderr(), err)
		os.Exit(1)
	}
}
