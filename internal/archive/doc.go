// Package archive reads markdown files out of a repository source archive.
//
// A source archive is a gzip-compressed or plain tar stream whose entries all
// live under a single synthetic root directory named after the repository and
// ref (for example "docs-v1.0.0/"). Reader walks the stream once, in archive
// order, and yields only the files that match a Pattern:
//
//	r, err := archive.NewReader(body, archive.NewPattern("docs"))
//	for {
//	    entry, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// Walk wraps the same loop with a callback and stops at the first error.
package archive
