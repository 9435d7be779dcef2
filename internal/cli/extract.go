package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgallion1/papergest/internal/exam"
	"github.com/dgallion1/papergest/internal/pipeline"
	"github.com/dgallion1/papergest/internal/result"
	"github.com/spf13/cobra"
)

type outputOptions struct {
	savePath string
	pdfPath  string
}

func (o *outputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.savePath, "save_path", "", "where to write the JSON result (default $PAPERGEST_OUTPUT or "+result.DefaultPath+")")
	cmd.Flags().StringVar(&o.pdfPath, "pdf_path", "", "also render the questions to this PDF file")
}

// write persists res and prints the numbered questions.
func (o *outputOptions) write(cmd *cobra.Command, defaultPath string, res *exam.Result) error {
	path := o.savePath
	if path == "" {
		path = defaultPath
	}
	writers := result.Multi{result.JSONWriter{Path: path}}
	if o.pdfPath != "" {
		writers = append(writers, result.PDFWriter{Path: o.pdfPath})
	}
	if err := writers.Write(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	result.Print(cmd.OutOrStdout(), res)
	cmd.PrintErrf("\n%d questions written to %s", res.QuestionCount(), path)
	if n := len(res.Failures); n > 0 {
		cmd.PrintErrf(" (%d documents skipped)", n)
	}
	cmd.PrintErrln()
	return nil
}

func newExtractCommand(root *rootOptions) *cobra.Command {
	var (
		filePath string
		req      pipeline.Request
		out      outputOptions
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract topic questions from one local document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			req, err := req.Normalize()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(filePath)
			if err != nil {
				return exam.Wrap(exam.KindInvalidRequest, filePath, err)
			}

			a := newApp(cfg, root.textLogger(cmd.ErrOrStderr()))
			defer a.Close(cmd.Context())

			sum := sha256.Sum256(data)
			doc := exam.NewDocument(hex.EncodeToString(sum[:]), req.Subject, filePath, filepath.Base(filePath), data)
			res, runErr := a.pipeline(nil).RunDocument(cmd.Context(), req, doc)
			if res == nil {
				return runErr
			}
			if err := out.write(cmd, cfg.OutputPath, res); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&filePath, "file_path", "", "document to extract from (pdf, docx, txt, md, html, csv)")
	cmd.Flags().StringVar(&req.Topic, "topic", "", "topic the questions must relate to")
	cmd.Flags().StringVar(&req.Subject, "subject", "Unknown", "subject recorded in the result")
	cmd.Flags().BoolVar(&req.UseEnhancement, "use_llm", false, "clean up questions with the configured language model")
	out.register(cmd)
	_ = cmd.MarkFlagRequired("file_path")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}
