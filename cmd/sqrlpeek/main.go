// sqrlpeek decrypts and dumps the cleartext fields of an S4 identity
// container: the password block, the rescue block, and (once MK is known)
// the previous-identities block.
//
// Usage:
//
//	sqrlpeek [-h] password [rescueCode] (SQRLDATA…|filename)
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqrl-go/sqrl/pkg/storage"
)

var rootCmd = &cobra.Command{
	Use:          "sqrlpeek password [rescueCode] (SQRLDATA…|filename)",
	Short:        "Dump the cleartext fields of an S4 identity container",
	Args:         cobra.RangeArgs(2, 3),
	SilenceUsage: true,
	RunE:         runPeek,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sqrlpeek:", err)
		os.Exit(1)
	}
}

func runPeek(cmd *cobra.Command, args []string) error {
	password := args[0]
	var rescueCode, blob string
	if len(args) == 3 {
		rescueCode, blob = args[1], args[2]
	} else {
		blob = args[1]
	}

	s := storage.New()
	if data, err := os.ReadFile(blob); err == nil {
		if err := s.Load(data); err != nil {
			return fmt.Errorf("parsing %s: %w", blob, err)
		}
	} else if err := s.Load([]byte(blob)); err != nil {
		return fmt.Errorf("parsing container: %w", err)
	}

	var mk []byte
	if block, ok := s.GetBlock(storage.BlockTypePassword); ok {
		m, ilk, opts, err := storage.DecodeType1(block, []byte(password))
		if err != nil {
			fmt.Printf("type 1 (password): decrypt failed: %v\n", err)
		} else {
			mk = m
			fmt.Println("type 1 (password):")
			fmt.Printf("  flags:            %#04x\n", opts.Flags)
			fmt.Printf("  hint length:      %d\n", opts.HintLength)
			fmt.Printf("  enscrypt seconds: %d\n", opts.EnscryptSeconds)
			fmt.Printf("  timeout minutes:  %d\n", opts.TimeoutMinutes)
			fmt.Printf("  mk:               %s\n", hex.EncodeToString(mk))
			fmt.Printf("  ilk:              %s\n", hex.EncodeToString(ilk))
		}
	} else {
		fmt.Println("type 1 (password): absent")
	}

	if block, ok := s.GetBlock(storage.BlockTypeRescue); ok {
		if rescueCode == "" {
			fmt.Println("type 2 (rescue): present, no rescue code supplied")
		} else {
			iuk, err := storage.DecodeType2(block, []byte(rescueCode))
			if err != nil {
				fmt.Printf("type 2 (rescue): decrypt failed: %v\n", err)
			} else {
				fmt.Println("type 2 (rescue):")
				fmt.Printf("  iuk: %s\n", hex.EncodeToString(iuk))
			}
		}
	} else {
		fmt.Println("type 2 (rescue): absent")
	}

	if block, ok := s.GetBlock(storage.BlockTypePrevious); ok {
		if len(mk) == 0 {
			fmt.Println("type 3 (previous identities): present, mk unavailable")
		} else {
			piuks, err := storage.DecodeType3(block, mk)
			if err != nil {
				fmt.Printf("type 3 (previous identities): decrypt failed: %v\n", err)
			} else {
				fmt.Println("type 3 (previous identities):")
				for i, p := range piuks {
					fmt.Printf("  piuk[%d]: %s\n", i, hex.EncodeToString(p))
				}
			}
		}
	} else {
		fmt.Println("type 3 (previous identities): absent")
	}

	return nil
}
