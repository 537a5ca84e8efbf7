// Package columnar infers the schema of staged CSV files.
//
// A sample of the file is parsed with Arrow's inferring CSV reader, written
// to a Parquet sample next to the object's metadata and the schema is read
// back from that Parquet file. Reading the schema from the written sample
// means the reported types are the ones a columnar engine would store, not
// just the first guess of the CSV parser.
//
// Type names follow the Arrow text form used by the shipped type mappings:
// int64, double, string, bool, date32[day], timestamp[s] and so on. A column
// that held only nulls in the sample is reported as string.
package columnar
