package indexer

// Chunk is one section of a markdown document, kept as markdown.
type Chunk struct {
	Index   int    // Position within the document, from 0
	Heading string // Text of the heading that opens the section, if any
	Text    string // Markdown source of the section
}

// File is a markdown file found under the corpus root.
type File struct {
	RelPath string // Slash-separated path relative to the root
	AbsPath string
}

// Stats summarise one indexing run.
type Stats struct {
	Files    int `json:"files"`
	Empty    int `json:"empty"`
	Failed   int `json:"failed"`
	Chunks   int `json:"chunks"`
	Embedded int `json:"embedded"`
}
