// Package commands implements the chatsecure CLI command tree.
package commands
