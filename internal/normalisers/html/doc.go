// Package html provides a Normaliser for HTML documents such as exported
// field reports. Sections, tables and inline images become separate blocks
// so tables and figures can be routed on their own.
package html
