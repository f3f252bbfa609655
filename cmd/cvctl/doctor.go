package main

import (
	"fmt"
	"io"

	"cloudvault/internal/e2ee"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that this platform can run the encryption core",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(cmd.OutOrStdout())
	},
}

type check struct {
	name string
	run  func() error
}

func runDoctor(out io.Writer) error {
	checks := []check{
		{"crypto provider", func() error {
			if !e2ee.Supported() {
				return fmt.Errorf("P-256 or AES-GCM unavailable")
			}
			return nil
		}},
		{"key agreement", checkKeyAgreement},
		{"message round trip", checkRoundTrip},
	}

	failed := 0
	for _, c := range checks {
		if err := c.run(); err != nil {
			failed++
			fmt.Fprintln(out, color.RedString("✗")+" "+c.name+": "+err.Error())
			continue
		}
		fmt.Fprintln(out, color.GreenString("✓")+" "+c.name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}

func checkKeyAgreement() error {
	alice, bob := e2ee.NewKeyStore(), e2ee.NewKeyStore()
	a, err := alice.GenerateKeyPair()
	if err != nil {
		return err
	}
	b, err := bob.GenerateKeyPair()
	if err != nil {
		return err
	}
	exported, err := e2ee.ExportPublicKey(b.PublicKey)
	if err != nil {
		return err
	}
	imported, err := e2ee.ImportPublicKey(exported)
	if err != nil {
		return err
	}
	ab, err := alice.DeriveSharedKey(a.KeyID, imported)
	if err != nil {
		return err
	}
	ba, err := bob.DeriveSharedKey(b.KeyID, a.PublicKey)
	if err != nil {
		return err
	}
	if !ab.Equal(ba) {
		return fmt.Errorf("shared secrets differ")
	}
	return nil
}

func checkRoundTrip() error {
	ck, err := e2ee.GenerateConversationKey(uuid.New())
	if err != nil {
		return err
	}
	msg, err := e2ee.EncryptMessage("doctor", ck)
	if err != nil {
		return err
	}
	plain, err := e2ee.DecryptMessage(msg, ck)
	if err != nil {
		return err
	}
	if plain != "doctor" {
		return fmt.Errorf("decrypted %q", plain)
	}
	return nil
}
