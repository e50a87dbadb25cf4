package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	bigpkg "github.com/icza/hwbig"
)

func lsCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls <file>",
		Short: "List an archive's members, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			archive, err := bigpkg.Open(f)
			if err != nil {
				return err
			}
			defer archive.Close()

			for _, m := range archive.Members() {
				if long {
					delta := int64(m.RealSize()) - int64(m.StoredSize())
					fmt.Printf("%-5v %10d %10d %8d %s %s\n",
						m.Compressed(), m.StoredSize(), m.RealSize(), delta,
						m.ModTime().Format("2006-01-02 15:04:05"), m.Name())
				} else {
					fmt.Println(m.Name())
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "long form: compressed-flag, stored size, real size, delta, mtime, name")
	return cmd
}
