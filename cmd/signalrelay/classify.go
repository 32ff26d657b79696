package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"signalrelay/internal/config"
	"signalrelay/internal/domain"
	"signalrelay/internal/relay"

	"github.com/spf13/cobra"
)

// discardSink satisfies domain.Sink for dry runs.
type discardSink struct{}

func (discardSink) SendText(context.Context, int64, string) error             { return nil }
func (discardSink) SendPhoto(context.Context, int64, string, string) error    { return nil }
func (discardSink) SendVideo(context.Context, int64, string, string) error    { return nil }
func (discardSink) SendDocument(context.Context, int64, string, string) error { return nil }

type classifyResult struct {
	Kind      domain.Kind          `json:"kind"`
	Label     string               `json:"label"`
	Signal    *domain.SignalFields `json:"signal,omitempty"`
	MediaKind domain.MediaKind     `json:"mediaKind,omitempty"`
	Body      string               `json:"body,omitempty"`
}

func classifyCmd() *cobra.Command {
	var (
		media   string
		variant string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify and render a post without sending it",
		Long: `Runs a post through the classifier and renderer and prints the result.
The text is read from the arguments, or from stdin when none are given.
With --media the text is treated as the caption of a media post.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			cfg, err := config.LoadOrDefaults(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if variant != "" {
				cfg.Relay.SignalVariant = variant
			}
			res, err := classifyText(cfg, text, domain.MediaKind(media))
			if err != nil {
				return err
			}
			return printClassification(cmd.OutOrStdout(), res, asJSON)
		},
	}
	cmd.Flags().StringVar(&media, "media", "", "treat text as the caption of a photo, video or document")
	cmd.Flags().StringVar(&variant, "variant", "", "signal template variant (classic or extended)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func classifyText(cfg *config.Config, text string, media domain.MediaKind) (classifyResult, error) {
	templates, err := relay.LoadTemplates(cfg.Relay.TemplatesFile)
	if err != nil {
		return classifyResult{}, fmt.Errorf("templates: %w", err)
	}

	source := cfg.Relay.SourceChannelID.Int64()
	r, err := relay.New(relay.Config{
		SourceChatID:  source,
		TargetChatID:  cfg.Relay.TargetChannelID.Int64(),
		SignalVariant: cfg.Relay.SignalVariant,
		Templates:     templates,
		Sink:          discardSink{},
		Logger:        logger,
	})
	if err != nil {
		return classifyResult{}, err
	}

	msg := domain.InboundMessage{ChatID: source, MediaKind: domain.MediaNone}
	switch media {
	case "", domain.MediaNone:
		msg.Text = text
	case domain.MediaPhoto, domain.MediaVideo, domain.MediaDocument:
		msg.Caption = text
		msg.MediaKind = media
		msg.MediaRef = "dry-run"
	default:
		return classifyResult{}, fmt.Errorf("unknown media kind %q (photo, video, document)", media)
	}

	c, out, ok, err := r.Preview(msg)
	if err != nil {
		return classifyResult{}, err
	}
	res := classifyResult{Kind: c.Kind, Label: c.Label()}
	if c.Kind == domain.KindSignal {
		res.Signal = &c.Signal
	}
	if ok {
		res.Body = out.Body
		res.MediaKind = out.MediaKind
	}
	return res, nil
}

func printClassification(w io.Writer, res classifyResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "kind:  %s\n", res.Kind)
	fmt.Fprintf(w, "label: %s\n", res.Label)
	if res.Body == "" {
		return nil
	}
	if res.MediaKind != "" && res.MediaKind != domain.MediaNone {
		fmt.Fprintf(w, "media: %s (passed through)\n", res.MediaKind)
	}
	fmt.Fprintf(w, "---\n%s\n", res.Body)
	return nil
}
