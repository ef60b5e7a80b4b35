// Package merge consolidates audience groups into one.
//
// Members move one source group at a time in bounded pages. An address
// already present in the target wins: the duplicate source row is
// deleted, its flags discarded. The merge is not atomic across groups;
// a failure keeps all progress made so far and aborts the rest.
package merge
