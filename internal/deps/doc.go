// Package deps detects the external binaries Carousel shells out to.
package deps
