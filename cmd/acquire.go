package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/app"
)

func newAcquireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "acquire <page_id>",
		Short: "Refreshes one organization with its posts, people and recent comments",
		Long: `acquire bypasses the cache and the document store, extracts everything
for the page through one browser session, persists it, and prints the result as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer a.Close()

			res := a.Engine().Begin()
			defer func() {
				if cerr := res.Close(); cerr != nil {
					rt.logger.Warn("close browser session", zap.Error(cerr))
				}
			}()
			acq, err := res.AcquireAll(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("acquire %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(acq); err != nil {
				return fmt.Errorf("encode acquisition: %w", err)
			}
			return nil
		},
	}
}
