package app

import (
	"path/filepath"

	"chatsecure/internal/directory"
	"chatsecure/internal/domain"
	"chatsecure/internal/log"
	"chatsecure/internal/realtime"
	"chatsecure/internal/services/conversation"
	"chatsecure/internal/services/keys"
	"chatsecure/internal/services/roster"
	"chatsecure/internal/services/session"
	"chatsecure/internal/store"
)

const archiveFile = "archive.db"

// Wire bundles the stores, clients and services for the CLI.
type Wire struct {
	Log         *log.Backend
	Keys        *keys.Service
	Credentials domain.CredentialStore
	Directory   domain.DirectoryClient
	Channel     domain.RealtimeChannel
	Roster      *roster.Manager
	Archive     domain.MessageArchive
	Session     *session.Controller
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, hooks conversation.Hooks) (*Wire, error) {
	backend, err := log.New(cfg.LogFile, cfg.LogLevel, false)
	if err != nil {
		return nil, err
	}

	creds := store.NewCredentialFileStore(cfg.Home, cfg.Passphrase)
	archive, err := store.OpenArchive(filepath.Join(cfg.Home, archiveFile))
	if err != nil {
		return nil, err
	}

	dir := directory.New(cfg.DirectoryURL, cfg.HTTP)
	channel := realtime.New(cfg.RealtimeURL, backend.GetLogger("realtime"))
	rosterMgr := roster.New()
	keySvc := keys.New()

	ctrl := session.New(
		keySvc, creds, dir, channel, rosterMgr, archive,
		backend.GetLogger("session"), hooks,
	)

	return &Wire{
		Log:         backend,
		Keys:        keySvc,
		Credentials: creds,
		Directory:   dir,
		Channel:     channel,
		Roster:      rosterMgr,
		Archive:     archive,
		Session:     ctrl,
	}, nil
}

// Close releases resources held by the wire.
func (w *Wire) Close() {
	if w.Archive != nil {
		_ = w.Archive.Close()
	}
	_ = w.Channel.Disconnect()
}
