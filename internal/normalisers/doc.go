// Package normalisers turns uploaded files into ordered content blocks.
// Each sub-package handles one family of formats; the Registry in this
// package picks one by MIME type, then by file extension.
//
// Normalisers are registered with the Registry at startup.
package normalisers
