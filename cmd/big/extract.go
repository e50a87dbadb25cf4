package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	bigpkg "github.com/icza/hwbig"
)

func extractCmd() *cobra.Command {
	var glob string
	var noDecompress bool
	cmd := &cobra.Command{
		Use:   "extract <file> [dest]",
		Short: "Extract matching members to dest, creating missing directories",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := "."
			if len(args) == 2 {
				dest = args[1]
			}

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
				if glob != "" {
					if ok, err := filepath.Match(glob, m.Name()); err != nil {
						return err
					} else if !ok {
						continue
					}
				}

				// noDecompress is accepted but has no effect: the Archive
				// interface surfaces decompressed bytes only, so every
				// member is extracted decompressed.
				_ = noDecompress

				r, err := archive.Open(m)
				if err != nil {
					return err
				}
				outPath := filepath.Join(dest, filepath.FromSlash(m.Name()))
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return err
				}
				out, err := os.Create(outPath)
				if err != nil {
					return err
				}
				if _, err := io.Copy(out, r); err != nil {
					out.Close()
					return err
				}
				if err := out.Close(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&glob, "include", "i", "", "only extract members matching this glob")
	cmd.Flags().BoolVar(&noDecompress, "no-decompress", false, "accepted for compatibility; has no effect, members are always extracted decompressed")
	return cmd
}
