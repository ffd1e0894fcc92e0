// Package types defines the Cupboard and Table interfaces, the segment,
// contact and contact-segment entities, and the standard errors shared by
// every storage backend and by the segments service.
package types
