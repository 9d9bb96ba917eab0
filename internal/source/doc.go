// Package source fetches a monitored page and extracts its items.
//
// Fetching and extraction are kept behind two narrow interfaces so a run
// can be driven by any page: Fetcher returns the raw page text, Extractor
// turns it into (url, title) candidates. SelectorExtractor covers the usual
// "list of links" page with CSS selectors.
package source
