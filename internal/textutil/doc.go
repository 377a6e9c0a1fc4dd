// Package textutil provides file-name sanitization and display helpers.
//
// Export archives use FoldName and SanitizeFileName so entry names survive
// any unzip tool: accents are folded away with golang.org/x/text and
// filesystem-unsafe characters are replaced.
package textutil
