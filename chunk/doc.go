// Package chunk provides the output byte-block abstraction shared by the table
// builders.
//
// A Chunk knows its size, alignment and how to serialize itself once every
// chunk it refers to has an address. Chunks live in an Arena and refer to each
// other through stable Ref indices, so a directory entry holds the Ref of its
// lookup table rather than a pointer to it.
//
// Addresses are assigned by layout (Arena.Place or the sequential
// Arena.Layout). Reading an address before that is a precedence error.
package chunk
