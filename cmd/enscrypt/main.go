// enscrypt stretches a password with EnScrypt and prints the 32-byte result
// as hex. The salt must be 32 bytes, so it does not reproduce the keys that
// Save and Lock derive, whose salts are 16 bytes.
//
// Usage:
//
//	enscrypt [-q] [password] [64-hex salt] [<n>i | <n>s]
//
// <n>i runs exactly n iterations; <n>s runs for n seconds (n at most 65),
// since the time budget is held in 16-bit milliseconds. Omitting the
// count runs the default 5-second stretch. Omitting the salt uses 32 zero
// bytes.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sqrl-go/sqrl/pkg/crypto"
)

const defaultNFactor = 9

var quiet bool

var rootCmd = &cobra.Command{
	Use:          "enscrypt [password] [64-hex salt] [<n>i|<n>s]",
	Short:        "Stretch a password with EnScrypt and print the result as hex",
	Args:         cobra.MaximumNArgs(3),
	SilenceUsage: true,
	RunE:         runEnscrypt,
}

func init() {
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the progress dots")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "enscrypt:", err)
		os.Exit(1)
	}
}

func runEnscrypt(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("password is required")
	}
	password := args[0]

	salt := make([]byte, crypto.KeySize)
	if len(args) >= 2 && args[1] != "" {
		decoded, err := hex.DecodeString(args[1])
		if err != nil || len(decoded) != crypto.KeySize {
			return fmt.Errorf("salt must be %d hex characters", crypto.KeySize*2)
		}
		salt = decoded
	}

	var es *crypto.EnScrypt
	var err error
	if len(args) >= 3 && args[2] != "" {
		es, err = parseCount([]byte(password), salt, args[2])
	} else {
		es, err = crypto.NewEnScryptMillis([]byte(password), salt, 5000, defaultNFactor)
	}
	if err != nil {
		return err
	}

	for !es.Finished() {
		es.Update()
		if !quiet {
			fmt.Fprint(os.Stderr, ".")
		}
	}
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	if !es.Successful() {
		return fmt.Errorf("scrypt derivation failed")
	}
	result := es.Result()
	fmt.Println(hex.EncodeToString(result[:]))
	return nil
}

func parseCount(password, salt []byte, spec string) (*crypto.EnScrypt, error) {
	suffix := spec[len(spec)-1]
	numeric := spec[:len(spec)-1]
	n, err := strconv.ParseUint(numeric, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid count %q: must be <n>i or <n>s", spec)
	}
	switch strings.ToLower(string(suffix)) {
	case "i":
		return crypto.NewEnScryptIterations(password, salt, uint16(n), defaultNFactor)
	case "s":
		if n > 65 {
			return nil, fmt.Errorf("invalid count %q: at most 65 seconds", spec)
		}
		return crypto.NewEnScryptMillis(password, salt, uint16(n)*1000, defaultNFactor)
	default:
		return nil, fmt.Errorf("invalid count %q: must be <n>i or <n>s", spec)
	}
}
