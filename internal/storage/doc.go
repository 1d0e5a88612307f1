// Package storage is the metrics storage engine: it accepts individual
// metric records from a producer and reconstructs the full, time-ordered
// table for a run.
//
// Two interchangeable backends implement the save/load contract:
//
//   - appendlog: one append-only JSONL stream per run. Simple and correct;
//     reads are linear in run size.
//   - hybrid: a JSONL write-ahead log compacted on a size threshold into
//     immutable, date-partitioned Parquet archive files, keeping reads
//     sub-linear as runs grow to millions of points.
//
// Both backends sit on the durable package's write primitives: every save
// completes a data durability barrier before returning, so a crash
// immediately after a successful save never loses that record.
//
// A backend instance owns exactly one (project, run) pair and is meant for a
// single writer per process; readers may run concurrently with the writer.
// That discipline is a documented caller obligation, not enforced here.
package storage
