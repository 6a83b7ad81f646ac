package epub

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shelfmark/shelfmark/pkg/mediafile"
	"github.com/shelfmark/shelfmark/pkg/models"
)

type OPF struct {
	Title         string
	Author        string
	CoverFilepath string
	CoverMimeType string
	CoverData     []byte
}

type Package struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Title []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
		} `xml:"title"`
		Creator []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
			Role string `xml:"role,attr"`
		} `xml:"creator"`
		Meta []struct {
			Text     string `xml:",chardata"`
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Refines  string `xml:"refines,attr"`
			Property string `xml:"property,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Item []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
}

// Parse reads embedded metadata (and cover bytes, if any) out of an EPUB.
// The context is checked between the archive stages so a per-file deadline
// can interrupt a stalled parse.
func Parse(ctx context.Context, path string) (*mediafile.ParsedMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	stats, err := f.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	zipReader, err := zip.NewReader(f, stats.Size())
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Find the OPF package document. The container.xml indirection isn't
	// needed to locate it; scanning for the .opf entry handles every EPUB
	// in practice, including ones with a broken container.xml.
	var opf *OPF
	for _, file := range zipReader.File {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if filepath.Ext(file.Name) == ".opf" {
			r, err := file.Open()
			if err != nil {
				return nil, errors.WithStack(err)
			}
			opf, err = ParseOPF(file.Name, r)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			break
		}
	}

	if opf == nil {
		return nil, errors.New("no opf file found")
	}

	if opf.CoverFilepath != "" {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		for _, file := range zipReader.File {
			if file.Name == opf.CoverFilepath {
				r, err := file.Open()
				if err != nil {
					return nil, errors.WithStack(err)
				}
				b, err := io.ReadAll(r)
				if err != nil {
					return nil, errors.WithStack(err)
				}
				opf.CoverData = b
			}
		}
	}

	metadata := &mediafile.ParsedMetadata{
		Title:         opf.Title,
		Source:        models.DataSourceEmbedded,
		CoverMimeType: opf.CoverMimeType,
		CoverData:     opf.CoverData,
	}
	if opf.Author != "" {
		metadata.Author = pointerutil.String(opf.Author)
	}
	return metadata, nil
}

// ParseOPF parses the package document itself. filename is the entry's path
// inside the archive; manifest hrefs are resolved relative to it.
func ParseOPF(filename string, r io.ReadCloser) (*OPF, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pkg := &Package{}
	err = xml.Unmarshal(b, pkg)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	basePath := filepath.Dir(filename)
	if basePath == "." {
		basePath = ""
	} else {
		basePath += "/"
	}

	// Index refining meta elements so EPUB 3 title-type/role annotations can
	// be looked up by the ID they refine.
	metaProperties := map[string]map[string]string{}
	metaContent := map[string]string{}
	for _, m := range pkg.Metadata.Meta {
		if m.Refines != "" {
			key := strings.ReplaceAll(m.Refines, "#", "")
			if _, ok := metaProperties[key]; !ok {
				metaProperties[key] = map[string]string{}
			}
			metaProperties[key][m.Property] = m.Text
		} else if m.Content != "" {
			metaContent[m.Name] = m.Content
		}
	}

	title := ""
	if len(pkg.Metadata.Title) == 1 {
		title = pkg.Metadata.Title[0].Text
	} else if len(pkg.Metadata.Title) > 1 {
		for _, t := range pkg.Metadata.Title {
			if t.ID != "" && metaProperties[t.ID] != nil && metaProperties[t.ID]["title-type"] == "main" {
				title = t.Text
				break
			}
		}
	}

	author := ""
	for _, creator := range pkg.Metadata.Creator {
		role := creator.Role
		if role == "" && creator.ID != "" && metaProperties[creator.ID] != nil {
			role = metaProperties[creator.ID]["role"]
		}
		if role == "aut" || len(pkg.Metadata.Creator) == 1 {
			author = creator.Text
			break
		}
	}

	coverFilepath := ""
	coverMimeType := ""
	for _, item := range pkg.Manifest.Item {
		// EPUB 3 marks the cover in the manifest; EPUB 2 points at it from a
		// meta element named "cover".
		if strings.Contains(item.Properties, "cover-image") || (metaContent["cover"] != "" && item.ID == metaContent["cover"]) {
			coverFilepath = basePath + item.Href
			coverMimeType = item.MediaType
			break
		}
	}

	return &OPF{
		Title:         title,
		Author:        author,
		CoverFilepath: coverFilepath,
		CoverMimeType: coverMimeType,
	}, nil
}
