package chunk

// Document represents raw content prior to chunking.
type Document struct {
	Source string
	Text   string
}

// Settings configures chunking behavior.
type Settings struct {
	Strategy string
	Size     int
	Overlap  int
}

// Chunk is one ordered slice of a document ready for embedding.
type Chunk struct {
	Index  int
	Text   string
	Source string
}
