package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/msomdec/microlearn/internal/aescrypt"
	"github.com/msomdec/microlearn/internal/domain"
)

// secretEnv names the variable holding the shared roster/progress password.
// It is never read from a flag so it stays out of shell history.
const secretEnv = "MLP_SECRET"

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt a file in AES Crypt format with MLP_SECRET",
	Long:  "Encrypt a roster spreadsheet (or any file) so the server can load it. The password is read from MLP_SECRET.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrypt(cmd, aescrypt.Encrypt)
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt an AES Crypt file with MLP_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrypt(cmd, aescrypt.Decrypt)
	},
}

func init() {
	for _, c := range []*cobra.Command{encryptCmd, decryptCmd} {
		c.Flags().String("in", "", "Input file (required)")
		c.Flags().String("out", "", "Output file (required)")
		c.MarkFlagRequired("in")
		c.MarkFlagRequired("out")
	}
}

type cryptFunc func(w io.Writer, r io.Reader, password string) error

func runCrypt(cmd *cobra.Command, fn cryptFunc) error {
	secret := os.Getenv(secretEnv)
	if secret == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrConfiguration, secretEnv)
	}
	inPath, _ := cmd.Flags().GetString("in")
	outPath, _ := cmd.Flags().GetString("out")
	if inPath == outPath {
		return fmt.Errorf("%w: --in and --out must differ", domain.ErrInvalidInput)
	}

	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	if err := fn(out, in, secret); err != nil {
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	if err := out.Close(); err != nil {
		return errors.Join(fmt.Errorf("close output: %w", err), os.Remove(outPath))
	}

	slog.Info(cmd.Name()+"ed file", "in", inPath, "out", outPath)
	return nil
}
