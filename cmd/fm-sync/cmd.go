package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buildstate/fm-sync/serv"
)

var (
	cpath string
	conf  *serv.Config
)

func rootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "fm-sync",
		Short: "Buildstate FM cache synchronizer",
		Long: `fm-sync keeps a local query cache synchronized with the Buildstate FM
API: read-through fetching, optimistic writes with rollback, and
push-driven invalidation.`,
	}
	c.PersistentFlags().StringVar(&cpath, "config", "fm-sync.yml", "Path to the configuration file")

	c.AddCommand(validateCmd())
	c.AddCommand(pullCmd())
	return c
}

// setup loads the configuration or exits.
func setup() {
	var err error
	if conf, err = serv.ReadInConfig(cpath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
