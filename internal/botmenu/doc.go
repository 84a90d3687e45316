// Package botmenu caches the user's attach-menu bot list.
//
// The cache is hash-versioned: a refresh sends the last observed hash and the
// service answers "not modified" or a full replacement payload. The list is
// never partially updated, and the hash is never derived locally. Consumers
// subscribe for change signals instead of polling.
package botmenu
