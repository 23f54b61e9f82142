package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/docverify/internal/model"
	"github.com/sells-group/docverify/internal/pipeline"
)

var verifyShipment string

var verifyCmd = &cobra.Command{
	Use:   "verify [REFERENCE_ID DEPENDENT_ID]",
	Short: "Verify stored documents against each other",
	Long:  "Compares two stored documents, or with --shipment the shipment's commercial invoice against every dependent document. Results are stored and printed as JSON.",
	Args: func(cmd *cobra.Command, args []string) error {
		return verifyArgs(verifyShipment, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "verify", false)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := runVerify(ctx, env.Processor, verifyShipment, args)
		if err != nil {
			return err
		}
		return printResults(os.Stdout, results)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyShipment, "shipment", "", "verify every document of this shipment")
	rootCmd.AddCommand(verifyCmd)
}

func verifyArgs(shipment string, args []string) error {
	switch {
	case shipment != "" && len(args) > 0:
		return eris.New("verify: pass either two document ids or --shipment, not both")
	case shipment == "" && len(args) != 2:
		return eris.New("verify: need a reference and a dependent document id")
	}
	return nil
}

func runVerify(ctx context.Context, proc *pipeline.Processor, shipment string, args []string) ([]model.VerificationResult, error) {
	if shipment != "" {
		return proc.VerifyShipment(ctx, shipment)
	}
	res, err := proc.VerifyPair(ctx, args[0], args[1])
	if err != nil {
		return nil, err
	}
	return []model.VerificationResult{*res}, nil
}

func printResults(w io.Writer, results []model.VerificationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(results), "encode results")
}
