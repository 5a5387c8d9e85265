package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"postfetch/internal/metrics"
	"postfetch/internal/resolve"
	"postfetch/internal/ui"
)

var (
	flagJSON    bool
	flagVerbose bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <link or text>",
	Short: "Download the media of one post",
	Long: `Resolve finds the first supported post link in its arguments, downloads the
post's primary photo or video into the downloads directory and prints where it went.
The file is kept; the retention sweep removes it once it expires.`,
	Args: cobra.MinimumNArgs(1),
	RunE: resolveRun,
}

func init() {
	resolveCmd.Flags().BoolVarP(&flagJSON, "json", "j", false, "Output the result as JSON")
	resolveCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "List every strategy attempt")
}

type attemptJSON struct {
	Strategy  string `json:"strategy"`
	Skipped   bool   `json:"skipped,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type resultJSON struct {
	RequestID string        `json:"request_id"`
	Success   bool          `json:"success"`
	Platform  string        `json:"platform,omitempty"`
	PostURL   string        `json:"post_url,omitempty"`
	Kind      string        `json:"kind,omitempty"`
	FilePath  string        `json:"file_path,omitempty"`
	SizeBytes int64         `json:"size_bytes,omitempty"`
	Caption   string        `json:"caption,omitempty"`
	Strategy  string        `json:"strategy,omitempty"`
	Code      string        `json:"code,omitempty"`
	Message   string        `json:"message,omitempty"`
	Attempts  []attemptJSON `json:"attempts"`
}

func toJSON(res *resolve.Result) resultJSON {
	out := resultJSON{
		RequestID: res.RequestID,
		Success:   res.Success,
		PostURL:   res.PostURL,
		Code:      string(res.Code),
		Message:   res.Message,
		Attempts:  make([]attemptJSON, 0, len(res.Attempts)),
	}
	if res.PostURL != "" {
		out.Platform = res.Platform.String()
	}
	if res.Success {
		out.Kind = res.Kind.String()
		out.FilePath = res.FilePath
		out.SizeBytes = res.SizeBytes
		out.Caption = res.Caption
		out.Strategy = res.Strategy
	}
	for _, a := range res.Attempts {
		aj := attemptJSON{
			Strategy:  a.Strategy,
			Skipped:   a.Skipped,
			Code:      string(a.Code),
			ElapsedMS: a.Elapsed.Milliseconds(),
		}
		if a.Err != nil {
			aj.Error = a.Err.Error()
		}
		out.Attempts = append(out.Attempts, aj)
	}
	return out
}

func resolveRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := buildApp(metrics.Noop{}, false)
	if err != nil {
		return err
	}

	var res *resolve.Result
	work := func(ctx context.Context, status func(string)) error {
		res = a.service.Resolve(ctx, resolve.Request{
			Text:   strings.Join(args, " "),
			UserID: "cli",
			Progress: func(written, total int64) {
				status(ui.FormatProgress(written, total))
			},
		})
		return nil
	}

	if flagJSON {
		_ = work(ctx, func(string) {})
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(toJSON(res)); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	} else {
		if err := ui.Spin(ctx, os.Stderr, "Resolving link...", work); err != nil {
			return err
		}
		fmt.Print(ui.RenderResult(res, flagVerbose))
	}

	if !res.Success {
		return fmt.Errorf("%s", res.Code)
	}
	return nil
}
