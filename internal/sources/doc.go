// Package sources turns an item's source into an uploadable payload.
//
// Raw file sources are used as-is. Reference sources are materialized: data
// URIs and bare base64 are decoded locally, http(s) URLs are fetched with a
// size cap. The payload carries the item's display name and a sniffed MIME
// type so the backend sees the same thing regardless of origin.
package sources
