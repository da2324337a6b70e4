package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/memohai/lark-enhance/cmd/lark-enhance/modules"
	"github.com/memohai/lark-enhance/internal/channel"
	"github.com/memohai/lark-enhance/internal/config"
	"github.com/memohai/lark-enhance/internal/enhance"
	"github.com/memohai/lark-enhance/internal/logger"
	"github.com/memohai/lark-enhance/internal/version"
)

func resolveConfigPath(flag string) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	return os.Getenv("CONFIG_PATH")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Feishu and relay messages to the agent gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			app := modules.NewApp(cfg)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return fmt.Errorf("start: %w", err)
			}

			select {
			case <-ctx.Done():
			case <-app.Wait():
			}

			stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancelStop()
			return app.Stop(stopCtx)
		},
	}
}

func normalizeCmd() *cobra.Command {
	var render bool
	var width int
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize an agent reply read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			out := cmd.OutOrStdout()
			if render {
				out = &markdownWriter{out: out, width: width}
			}
			if err := runNormalize(cmd.InOrStdin(), out, enhance.NewNormalizer(cfg.Enhance.NormalizerConfig())); err != nil {
				return err
			}
			if mw, ok := out.(*markdownWriter); ok {
				return mw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "render the normalized markdown for the terminal")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width used with --render")
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Classify message parts read from stdin as JSON",
		Long:  `Reads {"parts":[...]} or a bare part array from stdin and prints the verdict. Quoted messages are not fetched.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClassify(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Name, version.GetInfo())
		},
	}
}

// runNormalize writes the normalized form of in to out, or nothing when
// normalization leaves no text.
func runNormalize(in io.Reader, out io.Writer, normalizer *enhance.Normalizer) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	text, ok := normalizer.Normalize(string(raw))
	if !ok {
		return nil
	}
	_, err = fmt.Fprintln(out, text)
	return err
}

type classifyOutput struct {
	Verdict  string `json:"verdict"`
	SourceID string `json:"source_id,omitempty"`
}

func runClassify(in io.Reader, out io.Writer) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var parts []channel.MessagePart
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal([]byte(trimmed), &parts)
	} else {
		var wrapped struct {
			Parts []channel.MessagePart `json:"parts"`
		}
		err = json.Unmarshal([]byte(trimmed), &wrapped)
		parts = wrapped.Parts
	}
	if err != nil {
		return fmt.Errorf("decode parts: %w", err)
	}
	result := enhance.Classify(channel.Message{Parts: parts})
	enc := json.NewEncoder(out)
	return enc.Encode(classifyOutput{Verdict: result.Verdict.String(), SourceID: result.SourceID})
}

// markdownWriter buffers the normalized text and renders it as terminal
// markdown on Flush.
type markdownWriter struct {
	out   io.Writer
	width int
	buf   strings.Builder
}

func (w *markdownWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *markdownWriter) Flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	if w.width <= 0 {
		w.width = 100
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(w.width),
	)
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(w.buf.String())
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w.out, rendered)
	return err
}
