package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"folio/api/internal/reference"
	"folio/api/internal/refstore"
)

func newRefCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ref",
		Short: "Manage the local reference store",
	}
	cmd.AddCommand(newRefAddCmd(opts), newRefGetCmd(opts), newRefSearchCmd(opts))
	return cmd
}

func newRefAddCmd(opts *options) *cobra.Command {
	var (
		ids     = map[reference.Source]*string{}
		authors []string
		md      reference.Metadata
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a reference",
		Long:  "Store a reference under exactly one of --pmid, --doi, --zotero or --manual. Storing the same identifier again replaces its metadata.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.jsonOutput()
			if err != nil {
				return err
			}
			source, sourceID := chosenSource(ids)
			md.Authors = authors
			if source == reference.SourceDOI && md.DOI == "" {
				md.DOI = sourceID
			}
			first := ""
			if len(authors) > 0 {
				first = authors[0]
			}
			id, err := reference.FromSource(source, sourceID, first, md.Year)
			if err != nil {
				return err
			}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Put(cmd.Context(), id, md)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, rec)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rec.CitationKey)
			return err
		},
	}
	for _, source := range []reference.Source{reference.SourcePubMed, reference.SourceDOI, reference.SourceZotero, reference.SourceManual} {
		value := new(string)
		ids[source] = value
		cmd.Flags().StringVar(value, sourceFlag(source), "", fmt.Sprintf("Identifier from %s", source))
	}
	cmd.MarkFlagsOneRequired("pmid", "doi", "zotero", "manual")
	cmd.MarkFlagsMutuallyExclusive("pmid", "doi", "zotero", "manual")

	cmd.Flags().StringArrayVarP(&authors, "author", "a", nil, `Author as "Surname Initials"; repeat in order`)
	cmd.Flags().StringVarP(&md.Year, "year", "y", "", "Publication year")
	cmd.Flags().StringVarP(&md.Title, "title", "t", "", "Title")
	cmd.Flags().StringVarP(&md.Journal, "journal", "j", "", "Journal")
	cmd.Flags().StringVar(&md.Volume, "volume", "", "Volume")
	cmd.Flags().StringVar(&md.Issue, "issue", "", "Issue")
	cmd.Flags().StringVar(&md.Pages, "pages", "", "Pages")
	return cmd
}

func newRefGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Show a stored reference",
		Long:  "Show the reference a citation key resolves to. KEY may be a citation key or a prefixed identifier such as pmid:12345.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.jsonOutput()
			if err != nil {
				return err
			}
			storageID, err := refstore.StorageIDForKey(args[0])
			if err != nil {
				return err
			}
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), storageID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, rec)
			}
			printRecord(cmd, rec)
			return nil
		},
	}
}

func newRefSearchCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search stored references",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := opts.jsonOutput()
			if err != nil {
				return err
			}
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if asJSON {
				if records == nil {
					records = []refstore.Record{}
				}
				return printJSON(cmd, records)
			}
			for _, rec := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rec.CitationKey, rec.Metadata.Title)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Max results")
	return cmd
}

func chosenSource(ids map[reference.Source]*string) (reference.Source, string) {
	for source, value := range ids {
		if strings.TrimSpace(*value) != "" {
			return source, *value
		}
	}
	return "", ""
}

func sourceFlag(source reference.Source) string {
	if source == reference.SourcePubMed {
		return "pmid"
	}
	return string(source)
}

func printRecord(cmd *cobra.Command, rec refstore.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key:      %s\n", rec.CitationKey)
	fmt.Fprintf(out, "source:   %s %s\n", rec.Source, rec.SourceID)
	fmt.Fprintf(out, "authors:  %s\n", strings.Join(rec.Metadata.Authors, "; "))
	fmt.Fprintf(out, "title:    %s\n", rec.Metadata.Title)
	fmt.Fprintf(out, "journal:  %s\n", rec.Metadata.Journal)
	fmt.Fprintf(out, "year:     %s\n", rec.Metadata.Year)
	if rec.Metadata.DOI != "" {
		fmt.Fprintf(out, "doi:      %s\n", rec.Metadata.DOI)
	}
}
