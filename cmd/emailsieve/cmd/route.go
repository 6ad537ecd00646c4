package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigcats-cc/email-sieve/internal/core/delivery"
	"github.com/bigcats-cc/email-sieve/internal/core/pipeline"
	"github.com/bigcats-cc/email-sieve/internal/types"
)

var routeCmd = &cobra.Command{
	Use:   "route [file|-]",
	Short: "Resolve the routing decision for a raw message",
	Long: `Read a raw RFC 5322 message from a file or stdin and print the decision as
JSON. With --deliver the decision is also executed through the configured
transport.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().String("from", "", "envelope sender")
	routeCmd.Flags().String("to", "", "envelope recipient")
	routeCmd.Flags().Bool("deliver", false, "execute the decision")
	routeCmd.MarkFlagRequired("to")
}

func runRoute(cmd *cobra.Command, args []string) error {
	raw, err := readMessage(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	deliver, _ := cmd.Flags().GetBool("deliver")

	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, err := loadServiceConfig()
	if err != nil {
		return err
	}
	engine, err := loadEngine(cfg.Rules.File)
	if err != nil {
		return err
	}

	forwarder, err := delivery.New(cmd.Context(), cfg.Delivery, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to configure delivery: %w", err)
	}
	processor := pipeline.New(engine,
		delivery.NewExecutor(forwarder, logger),
		delivery.NewFallback(forwarder, logger),
		nil, logger)

	in := types.Inbound{From: from, To: to, Raw: raw}
	var res pipeline.Result
	if deliver {
		res, err = processor.Process(cmd.Context(), in)
	} else {
		res, err = processor.DryRun(in)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// readMessage reads the file named by args[0], or stdin for "-" or no argument.
func readMessage(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return raw, nil
}
