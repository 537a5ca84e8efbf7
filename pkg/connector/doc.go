// Package connector groups the endpoints stageflow can read from and write
// to.
//
// # Architecture Overview
//
//   - core: the capability interfaces. A connector implements only what its
//     endpoint supports (QueryRunner, Extractor, SQLExecutor, Loader,
//     FileExtractor, Publisher) plus the SQL dialect of its kind.
//     Orchestrators check capabilities with core.Require and fail with a
//     capability error when one is missing.
//
//   - base: BaseConnector with the endpoint, logger and kind shared by every
//     connector, the retry policy used while connecting, and SQLDatabase for
//     database/sql backed connectors.
//
//   - registry: one Descriptor per endpoint_type with its category, the
//     embedded statement templates and type mapping files, and the
//     constructors for each role. Connectors register themselves from init.
//
// Databases: postgres, mysql (source and target), snowflake, bigquery
// (target). Files: csv. Object storage: s3, gcs.
//
// # Example Usage
//
//	reg := registry.GetRegistry()
//	conn, err := reg.Create(ctx, core.RoleSource, p.Source)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	runner, err := core.Require[core.QueryRunner](conn, "get_query_result")
//	if err != nil {
//		return err
//	}
//	rows, err := runner.GetQueryResult(ctx, query)
package connector
