// Package main provides a one-shot utility for actor token key generation.
//
// It emits the asymmetric keypair used to mint and verify actor tokens.
package main

import (
	"os"

	"github.com/ophelios-studio/codequill-contracts/internal/platform/config"
	"github.com/ophelios-studio/codequill-contracts/internal/tools/actortokenkey"
)

func main() {
	if err := actortokenkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate actor token key: %v", err)
	}
}
