// Package tasks runs long listing operations with real-time progress reporting.
//
// # Export
//
// [Exporter.Export] fetches every page of an author's listing and writes it in one file:
//
//  1. The first page is fetched to learn the page count.
//  2. The remaining pages go through a worker pool, paced by a shared rate limiter.
//  3. Books are reassembled in page order and rendered by the formatter package.
//  4. A manifest next to the export records which pages failed.
//
// # Progress Reporting
//
// Operations send [ProgressUpdate] values on an optional channel. Sends use select with default so a slow or
// absent reader never blocks the export.
package tasks
