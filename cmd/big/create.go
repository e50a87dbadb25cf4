package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	bigpkg "github.com/icza/hwbig"
)

func createCmd() *cobra.Command {
	var format string
	var exclude string
	cmd := &cobra.Command{
		Use:   "create <file> [source]",
		Short: "Walk source recursively, add files, and save a new archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "."
			if len(args) == 2 {
				source = args[1]
			}

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var addFile func(path string, data []byte, mtime os.FileInfo)
			var save func() error

			switch format {
			case "hw1c":
				a := bigpkg.CreateHW1Classic(f)
				addFile = func(path string, data []byte, info os.FileInfo) { a.AddFile(path, data, info.ModTime()) }
				save = a.Save
			case "hw2":
				a := bigpkg.CreateHW2(f)
				addFile = func(path string, data []byte, info os.FileInfo) { a.AddFile(path, data, info.ModTime()) }
				save = a.Save
			default:
				a := bigpkg.CreateHW1(f)
				addFile = func(path string, data []byte, info os.FileInfo) { a.AddFile(path, data, info.ModTime()) }
				save = a.Save
			}

			err = filepath.Walk(source, func(p string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() {
					return nil
				}
				rel, err := filepath.Rel(source, p)
				if err != nil {
					return err
				}
				rel = filepath.ToSlash(rel)

				if exclude != "" {
					if ok, err := filepath.Match(exclude, rel); err != nil {
						return err
					} else if ok {
						return nil
					}
				}

				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				addFile(rel, data, info)
				return nil
			})
			if err != nil {
				return err
			}

			return save()
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "hw1", "archive format: hw1, hw1c, or hw2")
	cmd.Flags().StringVarP(&exclude, "exclude", "x", "", "skip source files matching this glob")
	return cmd
}
