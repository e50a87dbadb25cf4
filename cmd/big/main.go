// Command big is a thin CLI wrapper around the big package: list, extract,
// create, diff, and decrypt .big archives of any supported format.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "big",
		Short: "Inspect and manipulate Homeworld .big archives",
	}
	root.AddCommand(lsCmd(), extractCmd(), createCmd(), diffCmd(), decryptCmd())

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("big: command failed")
		os.Exit(1)
	}
}
