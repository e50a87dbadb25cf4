package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	bigpkg "github.com/icza/hwbig"
)

func diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <left> <right>",
		Short: "Compare two archives member-by-member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			left, leftArchive, err := openArchive(args[0])
			if err != nil {
				return err
			}
			defer left.Close()
			defer leftArchive.Close()

			right, rightArchive, err := openArchive(args[1])
			if err != nil {
				return err
			}
			defer right.Close()
			defer rightArchive.Close()

			leftByName := map[string]*bigpkg.Member{}
			for _, m := range leftArchive.Members() {
				leftByName[m.Name()] = m
			}
			rightByName := map[string]*bigpkg.Member{}
			for _, m := range rightArchive.Members() {
				rightByName[m.Name()] = m
			}

			var totalLeft, totalRight uint32
			for name, lm := range leftByName {
				totalLeft += lm.StoredSize()
				rm, ok := rightByName[name]
				if !ok {
					fmt.Printf("- %s\n", name)
					continue
				}
				if !lm.ModTime().Equal(rm.ModTime()) || lm.RealSize() != rm.RealSize() || lm.StoredSize() != rm.StoredSize() {
					fmt.Printf("~ %s (mtime %v->%v, real %d->%d, stored %d->%d)\n",
						name, lm.ModTime(), rm.ModTime(), lm.RealSize(), rm.RealSize(), lm.StoredSize(), rm.StoredSize())
				}
			}
			for name, rm := range rightByName {
				totalRight += rm.StoredSize()
				if _, ok := leftByName[name]; !ok {
					fmt.Printf("+ %s\n", name)
				}
			}

			fmt.Printf("total stored bytes: %d -> %d\n", totalLeft, totalRight)
			return nil
		},
	}
	return cmd
}

func openArchive(path string) (*os.File, bigpkg.Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	archive, err := bigpkg.Open(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, archive, nil
}
