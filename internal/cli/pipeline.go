package cli

import (
	"github.com/dgallion1/papergest/internal/acquire"
	"github.com/dgallion1/papergest/internal/pipeline"
	"github.com/spf13/cobra"
)

func newPipelineCommand(root *rootOptions) *cobra.Command {
	var (
		req pipeline.Request
		out outputOptions
	)
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Acquire papers, then extract topic questions from all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a := newApp(cfg, root.textLogger(cmd.ErrOrStderr()))
			defer a.Close(cmd.Context())

			onAcquired := func(r acquire.Report) {
				cmd.PrintErrf("Downloaded %d new documents (%d already known, %d failed)\n", r.New, r.Skipped, len(r.Failures))
			}
			res, runErr := a.acquireAndExtract(cmd.Context(), req, onAcquired, nil)
			if res == nil {
				return runErr
			}
			if err := out.write(cmd, cfg.OutputPath, res); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&req.Subject, "subject", "", "subject to acquire and extract")
	cmd.Flags().StringVar(&req.Topic, "topic", "", "topic the questions must relate to")
	cmd.Flags().BoolVar(&req.UseEnhancement, "use_llm", false, "clean up questions with the configured language model")
	out.register(cmd)
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}
