package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sweetshop/apiserver/internal/logging"
	"github.com/sweetshop/apiserver/internal/services"
	"github.com/sweetshop/apiserver/internal/storage"
	"github.com/sweetshop/apiserver/internal/store"
)

var exportKey string

// exportCmd represents the export command.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload a JSON snapshot of the catalog to object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.New(cfg.LogLevel, nil)
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		if objects == nil {
			return errors.New("export requires STORAGE_BACKEND to be set")
		}
		defer objects.Close()

		handle, err := store.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		defer handle.Close()

		exporter := services.NewCatalogExporter(handle.Sweets, objects, logger)
		key, count, err := exporter.Export(ctx, exportKey)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "exported %d sweets to %s/%s\n", count, objects.Bucket(), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportKey, "key", "", "object key (default snapshots/catalog-<unix>.json)")
}
