package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"folio/api/internal/draft"
	"folio/api/internal/style"
)

type renderFlags struct {
	style        string
	annotate     bool
	placeholders bool
	out          string
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.style, "style", "s", style.Default.String(), "Citation style: "+strings.Join(styleNames(), ", "))
	cmd.Flags().BoolVar(&f.annotate, "annotate", false, "Append the cited keys to every mark as an HTML comment")
	cmd.Flags().BoolVar(&f.placeholders, "placeholders", false, "Render unknown keys as placeholders instead of failing")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Write to this file instead of stdout")
}

func (f *renderFlags) session(store draft.MetadataStore) (*draft.Session, error) {
	sess := draft.NewSession(store)
	sess.Annotate = f.annotate
	if f.placeholders {
		sess.Unresolved = draft.Placeholder
	}
	if err := sess.SetStyle(f.style); err != nil {
		return nil, err
	}
	return sess, nil
}

type renderOutput struct {
	Name         string   `json:"name"`
	Style        string   `json:"style"`
	Source       string   `json:"source"`
	Text         string   `json:"text"`
	Bibliography []string `json:"bibliography"`
	Stale        []string `json:"stale,omitempty"`
	Unresolved   []string `json:"unresolved,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

func newRenderCmd(opts *options) *cobra.Command {
	flags := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render the citations of a draft",
		Long:  "Render citation markers in FILE (or - for stdin) and append a References section.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.jsonOutput()
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := flags.session(store)
			if err != nil {
				return err
			}
			doc, err := sess.CreateDraft(cmd.Context(), draftName(args[0]), raw)
			if err != nil {
				return err
			}
			return emitDocument(cmd, doc, flags.out, asJSON, doc.Text)
		},
	}
	flags.register(cmd)
	return cmd
}

func newInsertCmd(opts *options) *cobra.Command {
	flags := &renderFlags{}
	var (
		anchor   string
		key      string
		rendered bool
	)
	cmd := &cobra.Command{
		Use:   "insert FILE",
		Short: "Cite a reference after an anchor text",
		Long:  "Insert a marker for --key right after the first occurrence of --anchor in the rendered draft and print the updated source.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.jsonOutput()
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := flags.session(store)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			doc, err := sess.CreateDraft(ctx, draftName(args[0]), raw)
			if err != nil {
				return err
			}
			updated, err := sess.InsertCitation(ctx, doc, anchor, key)
			if err != nil {
				return err
			}
			text := updated.Raw
			if rendered {
				text = updated.Text
			}
			return emitDocument(cmd, updated, flags.out, asJSON, text)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&anchor, "anchor", "", "Text the citation goes after (required)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Citation key to insert (required)")
	cmd.Flags().BoolVar(&rendered, "rendered", false, "Print the rendered draft instead of the updated source")
	_ = cmd.MarkFlagRequired("anchor")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func emitDocument(cmd *cobra.Command, doc draft.Document, out string, asJSON bool, text string) error {
	if asJSON {
		return printJSON(cmd, renderOutput{
			Name:         doc.Name,
			Style:        doc.Style.String(),
			Source:       doc.Raw,
			Text:         doc.Text,
			Bibliography: doc.Entries(),
			Stale:        doc.Stale,
			Unresolved:   doc.Unresolved,
			Warnings:     doc.Warnings,
		})
	}
	for _, w := range doc.Warnings {
		warn(cmd, "%s", w)
	}
	for _, key := range doc.Unresolved {
		warn(cmd, "no metadata for %s", key)
	}
	for _, key := range doc.Stale {
		warn(cmd, "%s was only cited in the old References section", key)
	}
	return writeOutput(cmd, out, text)
}

func draftName(path string) string {
	if path == "-" {
		return "stdin"
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func styleNames() []string {
	all := style.All()
	names := make([]string, len(all))
	for i, st := range all {
		names[i] = st.String()
	}
	return names
}
