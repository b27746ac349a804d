// Package whisper is a small multi-user web app that keeps a per-user list of
// text secrets behind authentication.
//
// It ships two independent authentication architectures:
//
// The server (App, cmd/whisper) stores bcrypt password hashes, accepts Google
// sign-in, and carries identity between requests in an scs session that holds
// only the user id.
//
// The vault (Vault, cmd/vault) stores passwords encrypted with Fernet and has no
// session at all. Login and register render their result directly; the next
// request is anonymous again.
//
// # Architecture
//
// UserStore: the persistent user records. Implementations live in stores/fs
// (JSON files), stores/gorm (SQL via GORM) and stores/gae (Cloud Datastore);
// stores/backend picks one from a STORE_URL.
//
// PasswordCodec: turns a plaintext password into its stored form and checks a
// plaintext against it. BcryptCodec for the server, FernetCodec for the vault.
//
// Reconciler: maps a local credential or a Google account id onto exactly one
// user record.
//
// SessionManager: moves a browser between Anonymous and Authenticated(id), and
// holds one-shot flash notices.
//
// # Basic Usage
//
//	stores, _ := backend.Open(ctx, "file://./data")
//	sessions := whisper.NewSessionManager(stores.Users, stores.Sessions, 24*time.Hour, false)
//	reconciler := whisper.NewReconciler(stores.Users, whisper.BcryptCodec{})
//	renderer, _ := whisper.NewRenderer()
//	google := oauth2.NewGoogleOAuth2(clientId, clientSecret, callbackURL, nil)
//
//	app := whisper.NewApp(sessions, reconciler, renderer, google)
//	http.ListenAndServe(":3000", app.Handler())
package whisper
