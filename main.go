package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/fluxlora/loraconv/cmd"
)

func main() {
	if err := cmd.LoadDotEnv(".env"); err != nil {
		log.Fatal(err)
	}

	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
