package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/doccheck/internal/logger"
	"github.com/xhad/doccheck/internal/types"
	"github.com/xhad/doccheck/pkg/analyzer"
)

type analyzeOptions struct {
	strategy      string
	maxChars      int
	minChars      int
	language      string
	ocrPDF        bool
	ocrImages     bool
	legacyConvert bool
	userID        string
	chatID        string
	externalID    string
	jsonOutput    bool
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one document and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}

			// the terminal belongs to the progress bar unless logs are asked for
			log := logger.Nop()
			if cmd.Flags().Changed("log-mode") {
				if log, err = logger.New(cfg.Log.Mode); err != nil {
					return err
				}
				defer log.Sync()
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			a, st, err := buildAnalyzer(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			req := analyzer.Request{
				RequestID:        uuid.NewString(),
				Filename:         filepath.Base(args[0]),
				Data:             data,
				UserID:           opts.userID,
				ChatID:           opts.chatID,
				ExternalID:       opts.externalID,
				Language:         opts.language,
				ChunkStrategy:    opts.strategy,
				MaxCharsPerChunk: opts.maxChars,
			}
			flags := cmd.Flags()
			if flags.Changed("min-chars") {
				req.MinCharsRequired = &opts.minChars
			}
			if flags.Changed("ocr-pdf") {
				req.OCRForPDF = &opts.ocrPDF
			}
			if flags.Changed("ocr-images") {
				req.OCRForOfficeImages = &opts.ocrImages
			}
			if flags.Changed("legacy-convert") {
				req.OfficeLegacyConvert = &opts.legacyConvert
			}

			color.Blue("\nAnalyzing %s (%d bytes)\n", req.Filename, len(data))
			progress := newProgress()
			out, err := a.Analyze(cmd.Context(), req, progress)
			progress.finish()
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if out.Insufficient != nil {
					return enc.Encode(out.Insufficient)
				}
				return enc.Encode(out.Result)
			}
			printOutcome(out)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.strategy, "strategy", "", "Chunk strategy: none, pages, size, slides or sections")
	f.IntVar(&opts.maxChars, "max-chars", 0, "Maximum characters per chunk")
	f.IntVar(&opts.minChars, "min-chars", 0, "Minimum characters required for analysis")
	f.StringVar(&opts.language, "language", "", "Language of the summary (tr, en, es, pt, fr, ru)")
	f.BoolVar(&opts.ocrPDF, "ocr-pdf", true, "OCR PDFs without enough extractable text")
	f.BoolVar(&opts.ocrImages, "ocr-images", false, "OCR images embedded in office documents")
	f.BoolVar(&opts.legacyConvert, "legacy-convert", false, "Convert legacy .ppt files with LibreOffice")
	f.StringVar(&opts.userID, "user-id", "", "User id for persisting the summary")
	f.StringVar(&opts.chatID, "chat-id", "", "Chat id for persisting the summary")
	f.StringVar(&opts.externalID, "external-id", "", "External id forwarded to the provider")
	f.BoolVar(&opts.jsonOutput, "json", false, "Print the raw JSON response")
	return cmd
}

// progress turns analyzer events into a spinner during extraction and a bar during provider calls.
type progress struct {
	spinner *progressbar.ProgressBar
	bar     *progressbar.ProgressBar
	images  int
}

func newProgress() *progress {
	return &progress{spinner: getSpinner(" Extracting text...")}
}

func (p *progress) Report(ev types.Event) {
	switch ev.Stage {
	case "extracted":
		p.images = ev.Total
	case "ocr":
		p.spinner.Describe(color.CyanString(" Running OCR..."))
	case "planned":
		p.spinner.Finish()
		fmt.Println()
		p.bar = getProgressBar(ev.Total+p.images, " Classifying chunks")
	case "chunk", "image":
		if p.bar != nil {
			_ = p.bar.Add(1)
		}
	}
}

func (p *progress) finish() {
	_ = p.spinner.Finish()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
	fmt.Println()
}

var _ types.Reporter = (*progress)(nil)

func printOutcome(out *analyzer.Outcome) {
	if ins := out.Insufficient; ins != nil {
		color.Yellow("\nNot enough text to analyze (%d of %d characters, %d chunks, %d images)\n",
			ins.TotalCharacters, ins.MinCharsRequired, ins.ChunksFound, ins.ImageCandidates)
		fmt.Println(ins.Hint)
		return
	}

	res := out.Result
	verdict := color.New(color.FgGreen, color.Bold).SprintFunc()
	if res.AIGenerated {
		verdict = color.New(color.FgRed, color.Bold).SprintFunc()
	}
	label := "human written"
	if res.AIGenerated {
		label = "AI generated"
	}

	fmt.Printf("\n%s  confidence %.2f  words %d  characters %d\n",
		verdict(label), res.Confidence, res.TotalWords, res.TotalChars)
	for _, c := range res.Chunks {
		fmt.Printf("  #%-3d %-24s words=%-6d detected=%-5v confidence=%.2f\n",
			c.Index, c.Source, c.WordCount, c.IsDetected, c.Confidence)
	}
	for _, r := range res.ImageResults {
		fmt.Printf("  img#%-3d %-21s detected=%-5v confidence=%.2f\n", r.Index, r.Source, r.IsDetected, r.Confidence)
	}

	color.Cyan("\n%s\n", res.Summary)
	if res.Persistence.Saved {
		color.Green("✓ Saved as message %s\n", res.Persistence.MessageID)
	} else if res.PersistenceError != "" {
		color.Red("Failed to save message: %s\n", res.PersistenceError)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("calls"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
