// Package export packages cropped results into a zip archive.
//
// Entries live under processed_scans/ and are named <stem>_processed.<ext>,
// with _<n> appended for every result after the first. A manifest.yaml next
// to them lists each registry item with its status and entries.
package export
