// Package cache implements the compositor's buffer cache: a content-
// addressed store of rendered node results split across an in-memory
// tier and a disk tier, plus a separate registry for preview and viewer
// images that host UIs poll directly.
package cache
