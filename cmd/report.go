package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/report"
	"github.com/sells-group/docverify/internal/store"
)

var (
	reportShipment string
	reportOut      string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export a shipment's documents and verdicts to XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "report", false)
		if err != nil {
			return err
		}
		defer env.Close()

		out := reportOut
		if out == "" {
			out = reportShipment + ".xlsx"
		}
		return writeShipmentReport(ctx, env.Store, reportShipment, out)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportShipment, "shipment", "", "shipment id (required)")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "output file (default <shipment>.xlsx)")
	_ = reportCmd.MarkFlagRequired("shipment")
	rootCmd.AddCommand(reportCmd)
}

func writeShipmentReport(ctx context.Context, st store.Store, shipmentID, out string) error {
	docs, err := st.ListDocuments(ctx, store.DocumentFilter{ShipmentID: shipmentID})
	if err != nil {
		return eris.Wrap(err, "report: list documents")
	}
	results, err := st.ListVerifications(ctx, store.VerificationFilter{ShipmentID: shipmentID})
	if err != nil {
		return eris.Wrap(err, "report: list verifications")
	}
	if len(docs) == 0 && len(results) == 0 {
		return eris.Errorf("report: nothing on file for shipment %s", shipmentID)
	}
	if err := report.Save(out, docs, results); err != nil {
		return err
	}
	zap.L().Info("report written",
		zap.String("shipment_id", shipmentID),
		zap.String("path", out),
		zap.Int("documents", len(docs)),
		zap.Int("verifications", len(results)),
	)
	fmt.Println(out)
	return nil
}
