package main

import (
	"os"

	"chatsecure/cmd/chatsecure/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
