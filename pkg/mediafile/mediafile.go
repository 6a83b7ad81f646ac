package mediafile

import (
	"fmt"
)

// ParsedMetadata is the best-effort metadata record produced for every
// candidate file. Source is one of the models.DataSource constants and says
// where Title/Author came from.
type ParsedMetadata struct {
	Title  string
	Author *string
	// Source should be a value of models.DataSource*
	Source        string
	CoverMimeType string
	CoverData     []byte
}

func (m *ParsedMetadata) String() string {
	author := ""
	if m.Author != nil {
		author = *m.Author
	}
	return fmt.Sprintf("Title:           %s\nAuthor:          %s\nHas Cover Data:  %v\nCover Mime Type: %s\nSource:          %s", m.Title, author, len(m.CoverData) > 0, m.CoverMimeType, m.Source)
}

func (m *ParsedMetadata) CoverExtension() string {
	ext := ""
	switch m.CoverMimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	}
	return ext
}
