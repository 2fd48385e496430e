// Package ccindex defines the core types, interfaces and error taxonomy shared
// by the locator, scanner, aggregator, range fetcher and record decoder that
// make up the selective Common Crawl retrieval pipeline.
package ccindex
