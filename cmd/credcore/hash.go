package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/credcore/password"
)

// NewHashCmd hashes one password read from stdin. It is used to migrate
// legacy plaintext records offline.
func NewHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Read a password from stdin and print its argon2id PHC string",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			pw := strings.TrimRight(line, "\r\n")
			if pw == "" {
				return errors.New("empty password")
			}

			cfg := password.DefaultConfig()
			cfg.Memory = fc.Password.MemoryKB
			cfg.Time = fc.Password.Time
			cfg.Parallelism = fc.Password.Parallelism

			h, err := password.NewHasher(cfg, newLogger(fc))
			if err != nil {
				return err
			}
			encoded, err := h.Hash(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
}
