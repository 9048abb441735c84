package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/liteseed/arloader/internal/manifest"
	"github.com/liteseed/arloader/internal/pipeline"
	"github.com/liteseed/arloader/internal/tag"
)

var uploadManifestCmd = &cobra.Command{
	Use:   "upload-manifest [files...]",
	Short: "Upload a directory of files and a path manifest resolving them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logDir, err := resolveLogDir(args)
		if err != nil {
			return err
		}
		w, err := loadWallet(logDir)
		if err != nil {
			return err
		}

		coSigner, err := coSignerFromFlags()
		if err != nil {
			return err
		}
		cfg := pipelineConfig()
		cfg.WithSolana = coSigner

		inputs := make([]pipeline.Input, len(args))
		for i, path := range args {
			inputs[i] = pipeline.Input{Path: expandHome(path)}
		}
		summary, err := w.Upload(context.Background(), inputs, cfg)
		if err != nil {
			return err
		}

		entries := make(map[string]string, len(args))
		for _, res := range summary.Results {
			if res.Skipped || res.Err != nil || res.TxID == "" {
				continue
			}
			rec, err := w.GetStatus(res.TxID)
			if err != nil {
				return fmt.Errorf("load status for %s: %w", res.TxID, err)
			}
			for path, id := range rec.FilePaths {
				entries[filepath.Base(path)] = id
			}
		}

		indexPath := ""
		if flagManifestPath != "" {
			indexPath = filepath.Base(flagManifestPath)
		}
		m, err := manifest.Build(entries, indexPath)
		if err != nil {
			return err
		}
		body, err := m.Encode()
		if err != nil {
			return err
		}

		tmp, err := os.CreateTemp("", "manifest-*.json")
		if err != nil {
			return fmt.Errorf("stage manifest: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(body); err != nil {
			tmp.Close()
			return fmt.Errorf("stage manifest: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("stage manifest: %w", err)
		}

		manifestSummary, err := w.Upload(context.Background(), []pipeline.Input{
			{Path: tmp.Name(), Tags: []tag.Tag{manifest.Tag()}},
		}, cfg)
		if err != nil {
			return err
		}
		if err := reportSummary(cmd, manifestSummary); err != nil {
			return err
		}

		var txID string
		for _, res := range manifestSummary.Results {
			if res.TxID != "" {
				txID = res.TxID
			}
		}
		if txID != "" {
			if _, err := manifest.WriteCompanion(logDir, txID, m); err != nil {
				return err
			}
			if flagLinkFile != "" {
				if err := os.WriteFile(expandHome(flagLinkFile), []byte(txID+"\n"), 0o644); err != nil {
					return fmt.Errorf("write link file: %w", err)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadManifestCmd)
}
