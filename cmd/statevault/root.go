package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"pkt.systems/statevault"
)

func newRootCommand(logger pslog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "statevault",
		Short:         "Inspect and mutate leased records on a statevault backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	bindFlags(flags)

	root.AddCommand(newGetCommand(logger))
	root.AddCommand(newPutCommand(logger))
	root.AddCommand(newReleaseCommand(logger))
	return root
}

func bindFlags(flags *pflag.FlagSet) {
	flags.String("store", statevault.DefaultStore, "backend URL (mem:// or s3://host[:port]/bucket[/prefix])")
	flags.String("holder", "", "session identity used in lease tokens (default: generated)")
	flags.Duration("lock-timeout", statevault.DefaultLockTimeout, "lease validity window")
	flags.Duration("retry-min", statevault.DefaultRetryDelayMin, "minimum jittered backoff between attempts")
	flags.Duration("retry-max", statevault.DefaultRetryDelayMax, "maximum jittered backoff between attempts")
	flags.Int("retries", 0, "retry contended attempts this many times before failing")
	flags.Bool("force", false, "bypass live leases held elsewhere")

	for _, name := range []string{"store", "holder", "lock-timeout", "retry-min", "retry-max", "retries", "force"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	viper.SetEnvPrefix("STATEVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func openVault(logger pslog.Logger) (*statevault.Vault, error) {
	cfg := statevault.Config{
		Store:         viper.GetString("store"),
		Holder:        viper.GetString("holder"),
		Logger:        logger,
		LockTimeout:   viper.GetDuration("lock-timeout"),
		RetryDelayMin: viper.GetDuration("retry-min"),
		RetryDelayMax: viper.GetDuration("retry-max"),
	}
	if retries := viper.GetInt("retries"); retries > 0 {
		cfg.Locked = func(action statevault.Action) statevault.Decision {
			if action.Attempt <= retries {
				return statevault.Retry
			}
			return statevault.Fail
		}
	}
	return statevault.New(cfg)
}

func loadOptions() []statevault.LoadOption {
	if viper.GetBool("force") {
		return []statevault.LoadOption{statevault.WithForce()}
	}
	return nil
}

func newGetCommand(logger pslog.Logger) *cobra.Command {
	var hold bool
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Load a key and print its payload as JSON",
		Long: "Load acquires the key's lease. Unless --hold is given the payload is\n" +
			"saved straight back with release=true so the lease does not linger.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := openVault(logger)
			if err != nil {
				return err
			}
			defer vault.Close()

			key := args[0]
			payload, err := vault.Load(cmd.Context(), key, loadOptions()...)
			if err != nil {
				return err
			}
			if !hold {
				if err := vault.Save(cmd.Context(), key, payload, true); err != nil {
					return fmt.Errorf("release %q: %w", key, err)
				}
			}
			return printPayload(cmd.OutOrStdout(), logger, key, payload)
		},
	}
	cmd.Flags().BoolVar(&hold, "hold", false, "keep the lease instead of releasing after reading")
	return cmd
}

func newPutCommand(logger pslog.Logger) *cobra.Command {
	var hold bool
	cmd := &cobra.Command{
		Use:   "put KEY [JSON]",
		Short: "Write a JSON payload to a key",
		Long: "The payload is read from the argument, or from stdin when omitted or\n" +
			"given as \"-\". The lease is released unless --hold is given.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			vault, err := openVault(logger)
			if err != nil {
				return err
			}
			defer vault.Close()

			key := args[0]
			if err := vault.Save(cmd.Context(), key, payload, !hold); err != nil {
				return err
			}
			logger.Info("saved", "key", key, "release", !hold)
			return nil
		},
	}
	cmd.Flags().BoolVar(&hold, "hold", false, "keep the lease after writing")
	return cmd
}

func newReleaseCommand(logger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "release KEY",
		Short: "Release a key's lease, writing its payload back unchanged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := openVault(logger)
			if err != nil {
				return err
			}
			defer vault.Close()

			key := args[0]
			payload, err := vault.Load(cmd.Context(), key, statevault.WithForce())
			if err != nil {
				return err
			}
			if err := vault.Save(cmd.Context(), key, payload, true); err != nil {
				return err
			}
			logger.Info("released", "key", key)
			return nil
		},
	}
}

func readPayload(stdin io.Reader, args []string) (statevault.Payload, error) {
	var raw []byte
	if len(args) == 2 && args[1] != "-" {
		raw = []byte(args[1])
	} else {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		raw = data
	}
	var payload statevault.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

func printPayload(out io.Writer, logger pslog.Logger, key string, payload statevault.Payload) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	logger.Info("loaded", "key", key, "size", humanize.Bytes(uint64(len(encoded))))
	if _, err := fmt.Fprintln(out, string(encoded)); err != nil {
		return err
	}
	return nil
}
