package main

import (
	"fmt"
	"os"

	"github.com/noah-isme/openrecords-api/cmd/foilctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "foilctl:", err)
		os.Exit(1)
	}
}
