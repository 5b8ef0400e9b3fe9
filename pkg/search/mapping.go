package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// mappingVersion is bumped whenever buildIndexMapping changes, which
// forces a rebuild of indexes on disk.
const mappingVersion = "1"

// buildIndexMapping maps chunk documents: English-stemmed transcript text
// and an exact video_id used to scope searches to one video.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = en.AnalyzerName
	textField.Store = false
	docMapping.AddFieldMappingsAt("text", textField)

	videoField := bleve.NewTextFieldMapping()
	videoField.Analyzer = keyword.Name
	videoField.Store = true
	docMapping.AddFieldMappingsAt("video_id", videoField)

	orderField := bleve.NewNumericFieldMapping()
	orderField.Store = true
	docMapping.AddFieldMappingsAt("order", orderField)

	startField := bleve.NewNumericFieldMapping()
	startField.Store = true
	docMapping.AddFieldMappingsAt("start_sec", startField)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
