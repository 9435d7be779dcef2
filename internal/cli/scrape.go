package cli

import (
	"github.com/dgallion1/papergest/internal/pipeline"
	"github.com/spf13/cobra"
)

func newScrapeCommand(root *rootOptions) *cobra.Command {
	var subject, topic string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Download new exam papers for a subject and topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			req, err := pipeline.Request{Subject: subject, Topic: topic}.Normalize()
			if err != nil {
				return err
			}

			a := newApp(cfg, root.textLogger(cmd.ErrOrStderr()))
			defer a.Close(cmd.Context())

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.acquirer(st).Acquire(cmd.Context(), req.Subject, req.Topic)
			if err != nil {
				return err
			}
			cmd.Printf("Downloaded %d new documents (%d already known, %d failed)\n",
				report.New, report.Skipped, len(report.Failures))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject to search for")
	cmd.Flags().StringVar(&topic, "topic", "", "topic to search for")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}
