// Package rpmheader reads the structured header embedded in RPM package
// files.
//
// An RPM file starts with a fixed 96-byte lead, followed by a signature
// header, padding to an 8-byte boundary, the main header and finally the
// compressed payload. Both headers share one layout: a 16-byte intro
// (magic, entry count, data size), an index of 16-byte entries
// (tag, type, offset, count) and a data store the entries point into.
//
// Only the headers are read; the payload is never touched. Values are
// decoded on access, so reading a package costs one pass over the header
// bytes regardless of how many tags the caller ends up using.
//
//	pkg, err := rpmheader.ReadFile("attr-2.4.46-13.el7.x86_64.rpm")
//	if err != nil {
//	    return err
//	}
//	name, err := pkg.Name()
//
// Accessors return ErrTagNotFound (wrapped in a *TagError) when the header
// does not carry a tag, leaving it to the caller to decide which fields are
// required.
package rpmheader
