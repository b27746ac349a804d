//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of the whisper
// user store. It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: User records keyed by id
//   - Username: Index entities keyed by username, pointing at a User
//   - GoogleIdentity: Index entities keyed by Google account id, pointing at a User
//
// Index entities are written in the same transaction as their User, which is what
// makes usernames and Google ids unique.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	userStore := gae.NewUserStore(client, "")  // default namespace
package gae
