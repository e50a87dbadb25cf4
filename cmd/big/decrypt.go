package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/icza/hwbig/gearbox"
)

func decryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt <src> <dest>",
		Short: "Write the decrypted body of an HWRM archive to a plaintext file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			footer, err := gearbox.DetectFooter(src, gearbox.HWRMMarker)
			if err != nil {
				return err
			}

			cipherText := make([]byte, footer.DataSize)
			if _, err := src.ReadAt(cipherText, 0); err != nil {
				return err
			}

			cipher := gearbox.New(footer.DataSize, footer.LocalKey, gearbox.DefaultMasterKey)
			plain := cipher.Decrypt(cipherText, 0)

			return os.WriteFile(args[1], plain, 0o644)
		},
	}
	return cmd
}
