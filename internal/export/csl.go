package export

import (
	"encoding/json"
	"strconv"

	"folio/api/internal/reference"
	"folio/api/internal/style"
)

type cslName struct {
	Family string `json:"family"`
	Given  string `json:"given,omitempty"`
}

type cslDate struct {
	DateParts [][]int `json:"date-parts"`
}

type cslItem struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Title          string    `json:"title,omitempty"`
	ContainerTitle string    `json:"container-title,omitempty"`
	Author         []cslName `json:"author,omitempty"`
	Issued         *cslDate  `json:"issued,omitempty"`
	Volume         string    `json:"volume,omitempty"`
	Issue          string    `json:"issue,omitempty"`
	Page           string    `json:"page,omitempty"`
	DOI            string    `json:"DOI,omitempty"`
}

// CSLJSON encodes the bibliography as CSL-JSON for pandoc's citeproc. Item
// ids are the citation keys used in the interchange text.
func CSLJSON(cites []style.Citation) ([]byte, error) {
	items := make([]cslItem, 0, len(cites))
	for _, c := range cites {
		item := cslItem{ID: c.Key, Type: "article-journal"}
		if !c.Unresolved {
			md := c.Metadata
			item.Title = md.Title
			item.ContainerTitle = md.Journal
			item.Volume = md.Volume
			item.Issue = md.Issue
			item.Page = md.Pages
			item.DOI = md.DOI
			for _, name := range md.Authors {
				author := reference.ParseAuthor(name)
				if author.Surname == "" {
					continue
				}
				item.Author = append(item.Author, cslName{Family: author.Surname, Given: author.Initials})
			}
			if year, err := strconv.Atoi(style.Year(md)); err == nil {
				item.Issued = &cslDate{DateParts: [][]int{{year}}}
			}
		} else {
			item.Title = "Unresolved reference: " + c.Key
		}
		items = append(items, item)
	}
	return json.MarshalIndent(items, "", "  ")
}
