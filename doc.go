// Package stageflow moves data objects between databases, delimited files and
// object storage in two phases that share a local staging tree.
//
// The extract phase discovers the schema of every object of a pipeline,
// saves it as object metadata, and writes the object's rows or files under
// <output_dir>/<pipeline>/<object>/data. The load phase reads that metadata,
// composes the destination DDL through the type mapping of the source and
// target connector kinds, creates the destination table and loads the
// staged files into it. File and storage targets receive the staged files
// as they are.
//
// # Quick Start
//
// A pipeline lives in <pipeline_dir>/<name>/pipeline.yaml:
//
//	pipeline:
//	  pipeline_attributes:
//	    pipeline_name: shop
//	  source_attributes:
//	    endpoint_type: postgres
//	    host: localhost
//	    database: shop
//	    database_schema: public
//	  target_attributes:
//	    endpoint_type: snowflake
//	    database_schema: RAW
//	  data_attributes:
//	    data_objects_spec_mode: prefer
//	---
//	data_objects_spec:
//	- object_spec:
//	    object_name: orders
//	    recreate_destination_object: true
//
// and runs with
//
//	stageflow run -p shop
//	stageflow run -p shop --source-only -o orders
//
// # Key Packages
//
//	internal/extract  - extract orchestrator
//	internal/load     - load orchestrator
//	pkg/pipeline      - pipeline definitions and the staging layout
//	pkg/dataobject    - per-object settings resolution
//	pkg/metadata      - object metadata and its on-disk store
//	pkg/typemapping   - source to target type mapping
//	pkg/composer      - statement templates and file selection
//	pkg/connector     - connector contracts, registry and implementations
//	pkg/config        - workspace configuration
//	pkg/logger        - structured logging
//	pkg/metrics       - run metrics
//	pkg/observability - tracing
package stageflow
