package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	identity "github.com/goliatone/go-identity"
)

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 key pair for token signing",
		Long: `Generate an Ed25519 key pair. The default output is base64url text
ready for IDENTITY_TOKEN_PRIVATE_KEY and IDENTITY_TOKEN_PUBLIC_KEY;
--format pem writes PKCS#8 and PKIX blocks instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeKeyPair(cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or pem")
	return cmd
}

func writeKeyPair(w io.Writer, format string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return oops.Code("KEYGEN_FAILED").Wrap(err)
	}

	switch format {
	case "text", "":
		_, err = fmt.Fprintf(w, "IDENTITY_TOKEN_PRIVATE_KEY=%s\nIDENTITY_TOKEN_PUBLIC_KEY=%s\n",
			identity.EncodeKey(priv.Seed()), identity.EncodeKey(pub))
		return err
	case "pem":
		privDER, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return oops.Code("KEYGEN_FAILED").Wrap(err)
		}
		pubDER, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return oops.Code("KEYGEN_FAILED").Wrap(err)
		}
		if err := pem.Encode(w, &pem.Block{Type: "PRIVATE KEY", Bytes: privDER}); err != nil {
			return err
		}
		return pem.Encode(w, &pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	default:
		return oops.Code("CONFIG_INVALID").With("format", format).Errorf("unsupported key format")
	}
}
