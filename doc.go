// Package tablequery runs SPARQL SELECT and CONSTRUCT queries over tabular
// files such as CSV, TSV, LTSV, Parquet and Excel (XLSX).
//
// A table is read as a sequence of solutions: every row binds one variable
// per column, named after the header or, without a header, a, b, c and so
// on. Every row also binds ?ROWNUM to its 1-based position. Before a query
// runs, the table is injected as a data block at the start of its WHERE
// pattern, so triple-free queries such as
//
//	PREFIX ex: <http://example.com/>
//	CONSTRUCT { ?uri ex:name ?name }
//	WHERE { BIND(IRI(CONCAT("http://example.com/p/", STR(?ROWNUM))) AS ?uri) }
//	OFFSET 1
//
// turn tables into RDF. An OFFSET of exactly 1 on the first query means the
// first row holds column names, unless the header mode is set explicitly.
//
// # Features
//
//   - Streaming tables for CSV and TSV that reread the source for every pass
//   - Buffered tables for formats that need the whole input
//   - Format options in the fragment of a location, for example
//     "data.csv#encoding=latin1;delimiter=semicolon;header=absent"
//   - Automatic handling of compressed input (gzip, bzip2, xz, zstandard)
//   - Input from files, file URLs, io.Reader and fs.FS
//   - Output as N-Triples, CSV, TSV or JSON Lines
//
// # Basic Usage
//
//	rows, err := tablequery.Select(ctx, "people.csv", `SELECT ?name WHERE {} OFFSET 1`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rows.Close()
//
// # Advanced Usage
//
// For several query files, readers or explicit format settings, use the
// Builder:
//
//	validatedBuilder, err := tablequery.NewBuilder().
//	    AddQueryFile("mapping.sparql").
//	    SetPath("people.csv").
//	    WithFormatOptions(tablequery.FormatOptions{Delimiter: ';'}).
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer validatedBuilder.Cleanup()
//
//	exec, err := validatedBuilder.Open(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	triples, err := exec.ExecTriples(ctx)
//
// # Errors
//
// Every error wraps one of ErrSource, ErrFormat or ErrUsage, so callers can
// tell unreadable input from malformed rows and from misuse of the API.
package tablequery
