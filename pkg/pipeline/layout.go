package pipeline

import "path/filepath"

const (
	dataDirName          = "data"
	metadataDirName      = "metadata"
	metadataFileName     = "object_meta.json"
	extractStmtFileName  = "extract_to_stmt.sql"
	createStmtFileName   = "create_table_stmt.sql"
	loadStmtFileName     = "load_from_stmt.sql"
	transformerFileName  = "extractor_type_transformer.json"
	typeMappingExtension = ".json"
)

// Layout resolves every path a run reads or writes. Object paths are
// templated on the object name.
type Layout struct {
	PipelineDir string
	OutputDir   string
}

// ObjectDir is the staging root of one object.
func (l Layout) ObjectDir(object string) string {
	return filepath.Join(l.OutputDir, object)
}

// DataDir holds the extracted files of one object.
func (l Layout) DataDir(object string) string {
	return filepath.Join(l.OutputDir, object, dataDirName)
}

// MetadataDir holds the metadata record and audited statements of one object.
func (l Layout) MetadataDir(object string) string {
	return filepath.Join(l.OutputDir, object, metadataDirName)
}

// MetadataFile is the persisted ObjectMetadata of one object.
func (l Layout) MetadataFile(object string) string {
	return filepath.Join(l.MetadataDir(object), metadataFileName)
}

// ExtractStatementFile records the composed extraction statement.
func (l Layout) ExtractStatementFile(object string) string {
	return filepath.Join(l.MetadataDir(object), extractStmtFileName)
}

// CreateStatementFile records the composed DDL.
func (l Layout) CreateStatementFile(object string) string {
	return filepath.Join(l.MetadataDir(object), createStmtFileName)
}

// LoadStatementFile records the composed load statement.
func (l Layout) LoadStatementFile(object string) string {
	return filepath.Join(l.MetadataDir(object), loadStmtFileName)
}

// TypeMappingOverride is the pipeline-local type mapping for a source connector.
func (l Layout) TypeMappingOverride(sourceKind string) string {
	return filepath.Join(l.PipelineDir, sourceKind+typeMappingExtension)
}

// ExtractorTransformOverride is the pipeline-local column expression mapping.
func (l Layout) ExtractorTransformOverride() string {
	return filepath.Join(l.PipelineDir, transformerFileName)
}
